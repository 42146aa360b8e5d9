// Command vireo is a thin demonstration binary for the spider library: it
// loads a config file, crawls a single seed URL, and prints the URL and
// status of every page it fetches. It runs until it receives SIGINT or
// SIGTERM; it does not detect that the crawl has drained. It is not the product; embed
// the spider package in your own binary for anything beyond a smoke test.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/PuerkitoBio/goquery"

	"github.com/vireo-dev/vireo/grab"
	"github.com/vireo-dev/vireo/internal/common"
	"github.com/vireo-dev/vireo/spider"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (optional, defaults applied otherwise)")
	seedURL := flag.String("url", "", "seed URL to crawl")
	maxDepth := flag.Int("depth", 1, "how many link hops to follow from the seed")
	flag.Parse()

	if *seedURL == "" {
		fmt.Fprintln(os.Stderr, "usage: vireo -url https://example.com [-config vireo.toml] [-depth 1]")
		os.Exit(2)
	}

	var cfg *common.Config
	var err error
	if *configPath != "" {
		cfg, err = common.LoadConfig(*configPath)
	} else {
		cfg = common.NewDefaultConfig()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := common.SetupLogger(cfg)
	common.PrintBanner(cfg, logger)

	source := newSeedSource(*seedURL, *maxDepth)
	s, err := spider.NewFromConfig(cfg, source, func(d *grab.Document) bool { return d.HasValidHTML() }, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build spider")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("received shutdown signal")
		cancel()
	}()

	s.Start(ctx)
	<-ctx.Done()
	s.Stop()

	common.PrintShutdownBanner(logger)
	common.Stop()
}

// seedSource hands the spider a single seed task, then reports
// exhaustion; every link discovered after that is returned as a
// follow-up task from the handler itself and queued by the parser pool,
// not pulled through Next again.
type seedSource struct {
	mu    sync.Mutex
	queue []*spider.Task
}

func newSeedSource(seedURL string, maxDepth int) *seedSource {
	s := &seedSource{}
	s.queue = append(s.queue, spider.NewTask("seed", seedURL, s.handler(0, maxDepth)))
	return s
}

func (s *seedSource) Next() (*spider.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false, nil
	}
	task := s.queue[0]
	s.queue = s.queue[1:]
	return task, true, nil
}

func (s *seedSource) handler(depth, maxDepth int) spider.Handler {
	return func(doc *grab.Document, task *spider.Task) ([]*spider.Task, error) {
		fmt.Printf("%s (status %d)\n", doc.URL, doc.StatusCode)
		if depth >= maxDepth {
			return nil, nil
		}

		query, err := doc.Query()
		if err != nil {
			return nil, nil
		}

		seen := make(map[string]struct{})
		var followUps []*spider.Task
		query.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok {
				return
			}
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			target := doc.URL.ResolveReference(ref)
			if target.Scheme != "http" && target.Scheme != "https" {
				return
			}
			target.Fragment = ""
			abs := target.String()
			if _, dup := seen[abs]; dup {
				return
			}
			seen[abs] = struct{}{}
			followUps = append(followUps, spider.NewTask(abs, abs, s.handler(depth+1, maxDepth)))
		})

		return followUps, nil
	}
}
