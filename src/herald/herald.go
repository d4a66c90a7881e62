package herald

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/mosaicnetworks/herald/src/auth"
	"github.com/mosaicnetworks/herald/src/config"
	"github.com/mosaicnetworks/herald/src/crypto/keys"
	"github.com/mosaicnetworks/herald/src/delivery"
	"github.com/mosaicnetworks/herald/src/friends"
	"github.com/mosaicnetworks/herald/src/identity"
	"github.com/mosaicnetworks/herald/src/messages"
	"github.com/mosaicnetworks/herald/src/net/wamp"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/mosaicnetworks/herald/src/objects"
	"github.com/mosaicnetworks/herald/src/provider"
	"github.com/mosaicnetworks/herald/src/service"
	"github.com/mosaicnetworks/herald/src/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// Herald is a node with all its components.
type Herald struct {
	Config    *config.Config
	KV        store.KV
	Blobs     store.BlobStore
	Objects   *objects.Store
	Directory *identity.Directory
	Sequencer *messages.Sequencer
	Provider  *provider.Provider
	Auth      *auth.Auth
	Friends   *friends.JSONFriends
	Push      *wamp.Server
	Publisher *wamp.Client
	Selector  *delivery.Selector
	Service   *service.Service
	Registry  *prometheus.Registry

	signKey   *ecdsa.PrivateKey
	updateKey *ecdsa.PrivateKey
	self      object.Object

	logger *logrus.Entry
}

// NewHerald ...
func NewHerald(conf *config.Config) *Herald {
	return &Herald{
		Config: conf,
		logger: conf.Logger(),
	}
}

func (h *Herald) component(name string) *logrus.Entry {
	return h.logger.WithField("prefix", name)
}

func (h *Herald) initStore() error {
	if !h.Config.Store {
		h.KV = store.NewInmemKV()
		h.Blobs = store.NewInmemBlobStore()

		h.logger.Debug("created new in-mem stores")

		return nil
	}

	h.logger.WithField("path", h.Config.DatabaseDir).Debug("Attempting to load or create database")

	kv, err := store.NewBadgerKV(h.Config.KVDir(), h.component("kv"))
	if err != nil {
		return err
	}

	blobs, err := store.NewBadgerBlobStore(h.Config.BlobDir(), h.component("blobs"))
	if err != nil {
		kv.Close()
		return err
	}

	h.KV = kv
	h.Blobs = blobs

	return nil
}

func (h *Herald) initKeys() error {
	signFile := keyfile(h.Config.Keyfile(), h.Config.Passphrase)
	updateFile := keyfile(h.Config.UpdateKeyfile(), h.Config.Passphrase)

	signKey, err := signFile.ReadKey()
	if err != nil {
		if !os.IsNotExist(err) {
			h.logger.WithError(err).Error("Cannot read signing key")
			return err
		}

		h.logger.Warn("No key found, generating a new identity")

		if _, err := Keygen(h.Config); err != nil {
			h.logger.WithError(err).Error("Cannot generate a new identity")
			return err
		}

		if signKey, err = signFile.ReadKey(); err != nil {
			return err
		}
	}

	updateKey, err := updateFile.ReadKey()
	if err != nil {
		h.logger.WithError(err).Error("Cannot read update key")
		return err
	}

	h.signKey = signKey
	h.updateKey = updateKey

	return nil
}

func (h *Herald) initIdentity() error {
	data, err := ioutil.ReadFile(h.Config.IdentityFile())
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}

		self, err := writeIdentity(h.Config, h.signKey, h.updateKey)
		if err != nil {
			return err
		}

		h.self = self

		return nil
	}

	self, err := object.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("reading %s: %v", h.Config.IdentityFile(), err)
	}

	h.self = self

	return nil
}

func (h *Herald) initProvider() error {
	cache, err := identity.NewLRUCache(h.Config.CacheSize)
	if err != nil {
		return err
	}

	h.Objects = objects.NewStore(h.Blobs, h.component("objects"))
	h.Directory = identity.NewDirectory(h.KV, h.Objects, cache, h.component("directory"))
	h.Sequencer = messages.NewSequencer(h.KV, h.component("sequencer"))

	h.Registry = prometheus.NewRegistry()
	h.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	conf := provider.NewDefaultConfig()
	conf.EnforceTimeOrder = h.Config.EnforceTimeOrder
	conf.SendAttempts = h.Config.SendAttempts
	conf.MinBudget = h.Config.MinBudget

	p, err := provider.NewProvider(
		conf,
		h.self,
		keys.NewLocalSigner(h.signKey, keys.PurposeSign),
		h.Objects,
		h.Directory,
		h.Sequencer,
		provider.NewMetrics(h.Registry),
		h.component("provider"),
	)
	if err != nil {
		return err
	}

	if err := p.Bootstrap(context.Background()); err != nil {
		return err
	}

	h.Provider = p

	h.logger.WithField("permalink", p.Permalink()).Info("Provider ready")

	return nil
}

func (h *Herald) initPush() error {
	if h.Config.NoPush {
		return nil
	}

	certFile, keyFile := "", ""
	if _, err := os.Stat(h.Config.CertFile()); err == nil {
		certFile, keyFile = h.Config.CertFile(), h.Config.CertKeyFile()
	}

	server, err := wamp.NewServer(
		h.Config.PushAddr,
		h.Config.PushRealm,
		certFile,
		keyFile,
		h.component("wamp"),
	)
	if err != nil {
		return err
	}

	if err := server.Listen(); err != nil {
		server.Shutdown()
		return err
	}

	publisher, err := wamp.NewLocalClient(server.Router(), h.Config.PushRealm, h.component("publisher"))
	if err != nil {
		server.Shutdown()
		return err
	}

	h.Push = server
	h.Publisher = publisher

	return nil
}

func (h *Herald) initAuth() error {
	var issuer auth.CapabilityIssuer

	if h.Push != nil {
		url := h.Config.PushURL
		if url == "" {
			url = h.Push.URL()
		}

		issuer = &wamp.Issuer{
			URL:         url,
			Realm:       h.Config.PushRealm,
			TopicPrefix: h.Config.PushTopicPrefix,
			TTL:         h.Config.CredentialsTTL,
		}
	}

	h.Auth = auth.NewAuth(h.KV, h.Directory, h.Sequencer, issuer, nil, h.component("auth"))

	return nil
}

func (h *Herald) initSelector() error {
	h.Friends = friends.NewJSONFriends(h.Config.DataDir)

	var push delivery.Transport
	if h.Publisher != nil {
		push = delivery.NewPushTransport(
			h.Publisher,
			h.Config.PushTopicPrefix,
			h.Config.MaxPayloadSize,
			h.component("push"),
		)
	}

	pullConf := delivery.DefaultPullConfig()
	pullConf.Timeout = h.Config.PullTimeout
	pullConf.RetryMax = h.Config.PullRetries
	pullConf.RateLimit = h.Config.PullRate
	pullConf.RateBurst = h.Config.PullBurst

	pull := delivery.NewPullTransport(pullConf, h.component("pull"))

	h.Selector = delivery.NewSelector(
		push,
		pull,
		h.Auth,
		h.Friends,
		h.Sequencer,
		h.Objects,
		delivery.SelectorConfig{
			CatchUpBatch: h.Config.CatchUpBatch,
			MinBudget:    h.Config.MinBudget,
		},
		h.component("delivery"),
	)

	h.Provider.SetDeliverer(h.Selector)

	return nil
}

func (h *Herald) initService() error {
	if h.Config.ServiceAddr == "" {
		return nil
	}

	h.Service = service.NewService(
		h.Config.ServiceAddr,
		h.Provider,
		h.Auth,
		h.Selector,
		h.Registry,
		h.component("service"),
	)

	return nil
}

// Init creates every component. On failure, what was already opened is
// closed.
func (h *Herald) Init() error {
	steps := []func() error{
		h.initStore,
		h.initKeys,
		h.initIdentity,
		h.initProvider,
		h.initPush,
		h.initAuth,
		h.initSelector,
		h.initService,
	}

	for _, step := range steps {
		if err := step(); err != nil {
			h.Shutdown()
			return err
		}
	}

	return nil
}

// Run serves the push realm and the HTTP service. It blocks until the
// service stops.
func (h *Herald) Run() error {
	if h.Push != nil {
		go h.Push.Run()
	}

	if h.Service == nil {
		return nil
	}

	return h.Service.Serve()
}

// Shutdown stops the servers and closes the stores.
func (h *Herald) Shutdown() {
	if h.Service != nil {
		if err := h.Service.Shutdown(context.Background()); err != nil {
			h.logger.WithError(err).Error("Shutting down service")
		}
	}

	if h.Publisher != nil {
		h.Publisher.Close()
	}

	if h.Push != nil {
		h.Push.Shutdown()
	}

	if h.KV != nil {
		if err := h.KV.Close(); err != nil {
			h.logger.WithError(err).Error("Closing kv store")
		}
	}

	if h.Blobs != nil {
		if err := h.Blobs.Close(); err != nil {
			h.logger.WithError(err).Error("Closing blob store")
		}
	}
}
