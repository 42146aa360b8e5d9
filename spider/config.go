package spider

import (
	"encoding/gob"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/vireo-dev/vireo/grab"
	"github.com/vireo-dev/vireo/internal/common"
	"github.com/vireo-dev/vireo/spider/queue"
)

func init() {
	// Badger's Backend stores items behind an any; gob needs every
	// concrete type that crosses that boundary registered up front.
	gob.Register(&Task{})
}

// NewFromConfig builds the queue.Backend, grab.Client, and Options a
// Spider needs from cfg, and returns a ready-to-Start Spider. validFn
// becomes the dispatcher's acceptance predicate; nil accepts every
// response that reached the dispatcher without a transport error.
func NewFromConfig(cfg *common.Config, source Source, validFn func(*grab.Document) bool, logger arbor.ILogger) (*Spider, error) {
	backend, err := newBackend(cfg.Queue)
	if err != nil {
		return nil, err
	}

	client := grab.NewClient()
	if err := client.Setup(map[string]any{
		"user_agent":      cfg.Client.UserAgent,
		"reuse_cookies":   cfg.Client.ReuseCookies,
		"redirect_limit":  cfg.Client.RedirectLimit,
		"timeout":         cfg.Client.Timeout,
		"connect_timeout": cfg.Client.ConnectTimeout,
	}); err != nil {
		return nil, fmt.Errorf("spider: configure client: %w", err)
	}

	opts := Options{
		ThreadNumber:    cfg.Spider.ThreadNumber,
		ParserPoolSize:  cfg.Spider.ParserPoolSize,
		NetworkTryLimit: cfg.Spider.NetworkTryLimit,
		TaskTryLimit:    cfg.Spider.TaskTryLimit,
		Valid:           validFn,
	}

	return New(backend, client, source, opts, logger), nil
}

func newBackend(cfg common.QueueConfig) (queue.Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return queue.NewMemory(), nil
	case "badger":
		return queue.OpenBadger(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("spider: unknown queue backend %q", cfg.Backend)
	}
}
