// Package herald assembles a complete node from a config.Config: the
// stores, the node's keys and identity, the provider, the auth handshake, the
// push realm, the delivery selector and the HTTP service.
//
//  conf := config.NewDefaultConfig()
//  conf.SetDataDir("/path/to/datadir")
//
//  engine := herald.NewHerald(conf)
//  if err := engine.Init(); err != nil {
//  	return err
//  }
//  engine.Run()
package herald
