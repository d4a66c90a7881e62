package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/herald/src/herald"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a Herald node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runHerald,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runHerald(cmd *cobra.Command, args []string) error {
	engine := herald.NewHerald(&_config.Herald)

	if err := engine.Init(); err != nil {
		_config.Herald.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	//Prepare sigCh to relay SIGINT and SIGTERM system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		_config.Herald.Logger().Info("Shutting down")
		engine.Shutdown()
	}()

	return engine.Run()
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	c := _config.Herald

	cmd.Flags().String("datadir", c.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", c.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", c.LogFile, "Also write logs to this file")
	cmd.Flags().String("passphrase", c.Passphrase, "Passphrase of the key files")

	// Service
	cmd.Flags().StringP("service-listen", "s", c.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", c.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", c.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("cache-size", c.CacheSize, "Number of public keys in the LRU cache")

	// Provider
	cmd.Flags().Bool("enforce-time-order", c.EnforceTimeOrder, "Reject inbound messages that do not advance in time")
	cmd.Flags().Int("send-attempts", c.SendAttempts, "Attempts at claiming a sequence number")
	cmd.Flags().Duration("min-budget", c.MinBudget, "Time an attempt needs before the request deadline")

	// Push
	cmd.Flags().Bool("no-push", c.NoPush, "Disable the push realm")
	cmd.Flags().StringP("push-listen", "p", c.PushAddr, "Listen IP:Port for the push realm")
	cmd.Flags().String("push-advertise", c.PushURL, "URL handed to clients to reach the push realm")
	cmd.Flags().String("push-realm", c.PushRealm, "WAMP realm of the push realm")
	cmd.Flags().String("push-topic-prefix", c.PushTopicPrefix, "Prefix of client topics")
	cmd.Flags().Int("max-payload", c.MaxPayloadSize, "Max size of a pushed batch in bytes")
	cmd.Flags().Duration("credentials-ttl", c.CredentialsTTL, "Lifetime of client credentials")

	// Pull
	cmd.Flags().Duration("pull-timeout", c.PullTimeout, "Timeout of requests to friends")
	cmd.Flags().Int("pull-retries", c.PullRetries, "Retries of requests to friends")
	cmd.Flags().Float64("pull-rate", c.PullRate, "Requests per second to each friend")
	cmd.Flags().Int("pull-burst", c.PullBurst, "Burst of requests to each friend")
	cmd.Flags().Int("catchup-batch", c.CatchUpBatch, "Envelopes per catch-up step")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Herald.SetDataDir(_config.Herald.DataDir)

	logFields := logrus.Fields{
		"herald.DataDir":          _config.Herald.DataDir,
		"herald.ServiceAddr":      _config.Herald.ServiceAddr,
		"herald.Store":            _config.Herald.Store,
		"herald.LogLevel":         _config.Herald.LogLevel,
		"herald.CacheSize":        _config.Herald.CacheSize,
		"herald.EnforceTimeOrder": _config.Herald.EnforceTimeOrder,
		"herald.SendAttempts":     _config.Herald.SendAttempts,
		"herald.NoPush":           _config.Herald.NoPush,
		"herald.PullTimeout":      _config.Herald.PullTimeout,
	}

	if _config.Herald.Store {
		logFields["herald.DatabaseDir"] = _config.Herald.DatabaseDir
	}

	if !_config.Herald.NoPush {
		logFields["herald.PushAddr"] = _config.Herald.PushAddr
		logFields["herald.PushRealm"] = _config.Herald.PushRealm
	}

	_config.Herald.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/herald.toml (.json, .yaml also work)
	viper.SetConfigName("herald")               // name of config file (without extension)
	viper.AddConfigPath(_config.Herald.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Herald.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Herald.Logger().Debugf("No config file found in: %s", _config.Herald.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
