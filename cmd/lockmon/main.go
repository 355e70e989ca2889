// lockmon runs a lock table monitor: it prints every lock event to stdout,
// optionally journals events to PostgreSQL, and serves Prometheus metrics.
// With --demo it drives a small concurrent workload through the lock manager
// so there is something to observe.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arborxml/arbor/config"
	"github.com/arborxml/arbor/dom"
	"github.com/arborxml/arbor/journal"
	"github.com/arborxml/arbor/lock"
)

// consoleListener prints each lock event as one line.
type consoleListener struct{}

func (consoleListener) Registered()   { log.Println("console listener registered") }
func (consoleListener) Unregistered() { log.Println("console listener unregistered") }

func (consoleListener) Accept(action lock.LockAction) {
	reason := ""
	if action.Reason != "" {
		reason = " reason=" + action.Reason
	}
	fmt.Printf("%12d %-8s %-5s group=%-4d thread=%-6d %s%s\n",
		action.TimestampNS, action.Action, action.Mode, action.GroupID, action.Thread, action.ID, reason)
}

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file")
	demo := flag.Bool("demo", false, "Run a demo workload through the lock manager")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		log.Printf("Loaded configuration from %s", *configFile)
	}

	lock.ConfigureTableQueueCapacity(cfg.EventQueueCapacity)
	table := lock.Table()

	manager, err := lock.NewLockManager(cfg.ConcurrencyLevel)
	if err != nil {
		log.Fatalf("Failed to create lock manager: %v", err)
	}
	manager.SetLockTimeout(cfg.LockTimeout())

	console := consoleListener{}
	table.RegisterListener(console)

	var j *journal.Journal
	if cfg.Journal.Enabled {
		j, err = journal.Open(cfg.Journal.DSN, table.InstanceID())
		if err != nil {
			log.Fatalf("Failed to open journal: %v", err)
		}
		defer j.Close()
		table.RegisterListener(j)
		log.Println("Journal enabled")
	}

	if cfg.MetricsListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Printf("Serving metrics on %s", cfg.MetricsListenAddr)
			if err := http.ListenAndServe(cfg.MetricsListenAddr, mux); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	log.Printf("Monitoring lock table %s", table.InstanceID())

	stop := make(chan struct{})
	var workload sync.WaitGroup
	if *demo {
		workload.Add(1)
		go func() {
			defer workload.Done()
			runDemo(manager, stop)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %v, shutting down...", sig)

	close(stop)
	workload.Wait()

	table.DeregisterListener(console)
	if j != nil {
		table.DeregisterListener(j)
	}
	table.Shutdown()
	log.Println("Lockmon stopped")
}

// runDemo loops a mixed workload until stop is closed: concurrent collection
// reads, parent-locking writes, and a whole-set document lock.
func runDemo(manager *lock.LockManager, stop chan struct{}) {
	docs := dom.NewDocumentSet()
	docs.Add(dom.NewDocument(1, "/db/demo/docs/a.xml"))
	docs.Add(dom.NewDocument(2, "/db/demo/docs/b.xml"))
	docs.Add(dom.NewDocument(3, "/db/demo/docs/c.xml"))

	for {
		select {
		case <-stop:
			return
		default:
		}

		var wg sync.WaitGroup
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ml, err := manager.AcquireCollectionReadLock("/db/demo/docs")
				if err != nil {
					log.Printf("Demo read lock failed: %v", err)
					return
				}
				time.Sleep(10 * time.Millisecond)
				ml.Close()
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ml, err := manager.AcquireCollectionWriteLock("/db/demo/docs", true)
			if err != nil {
				log.Printf("Demo write lock failed: %v", err)
				return
			}
			time.Sleep(10 * time.Millisecond)
			ml.Close()
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := manager.LockDocuments(docs, false); err != nil {
				log.Printf("Demo document lock failed: %v", err)
				return
			}
			time.Sleep(10 * time.Millisecond)
			manager.UnlockDocuments(docs, false)
		}()
		wg.Wait()

		select {
		case <-stop:
			return
		case <-time.After(time.Second):
		}
	}
}
