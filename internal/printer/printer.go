package printer

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"geyim/backend/internal/domain"
)

const (
	ServiceIPP     = "_ipp._tcp"
	ServicePrinter = "_printer._tcp"
	ServicePOS     = "_geyimpos._tcp"
	mdnsDomain     = "local."
)

// Browser lists printers advertised on the local network.
type Browser interface {
	Browse(ctx context.Context) ([]domain.Printer, error)
}

// Discovery browses mDNS for a fixed window per call.
type Discovery struct {
	window   time.Duration
	services []string
}

func NewDiscovery(window time.Duration) *Discovery {
	if window <= 0 {
		window = 3 * time.Second
	}
	return &Discovery{window: window, services: []string{ServiceIPP, ServicePrinter}}
}

func (d *Discovery) Browse(ctx context.Context) ([]domain.Printer, error) {
	ctx, cancel := context.WithTimeout(ctx, d.window)
	defer cancel()

	var (
		mu    sync.Mutex
		found []domain.Printer
		wg    sync.WaitGroup
	)
	errs := make([]error, len(d.services))
	for i, service := range d.services {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, fmt.Errorf("mdns resolver: %w", err)
		}
		entries := make(chan *zeroconf.ServiceEntry)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range entries {
				mu.Lock()
				found = append(found, fromEntry(entry, service))
				mu.Unlock()
			}
		}()
		if err := resolver.Browse(ctx, service, mdnsDomain, entries); err != nil {
			errs[i] = err
			log.Printf("[printer] WARN: browse %s: %v", service, err)
		}
	}
	<-ctx.Done()
	wg.Wait()

	if len(found) == 0 {
		for _, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("mdns browse: %w", err)
			}
		}
	}
	return Dedupe(found), nil
}

func fromEntry(entry *zeroconf.ServiceEntry, service string) domain.Printer {
	host := strings.TrimSuffix(entry.HostName, ".")
	if len(entry.AddrIPv4) > 0 {
		host = entry.AddrIPv4[0].String()
	}
	return domain.Printer{
		ID:   fmt.Sprintf("%s@%s:%d", entry.Instance, host, entry.Port),
		Name: entry.Instance,
		Host: host,
		Port: entry.Port,
		Kind: strings.TrimPrefix(strings.TrimSuffix(service, "._tcp"), "_"),
	}
}

// Dedupe drops repeated announcements of the same printer and sorts by name.
func Dedupe(printers []domain.Printer) []domain.Printer {
	seen := make(map[string]bool, len(printers))
	out := make([]domain.Printer, 0, len(printers))
	for _, p := range printers {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Printer) int {
		if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Announcer advertises this backend so terminals can find it without configuration.
type Announcer struct {
	server *zeroconf.Server
}

func Announce(instance string, port int) (*Announcer, error) {
	server, err := zeroconf.Register(instance, ServicePOS, mdnsDomain, port, []string{"version=1.0", "api=/api/v1"}, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	log.Printf("[printer] announcing %s as %s on port %d", instance, ServicePOS, port)
	return &Announcer{server: server}, nil
}

func (a *Announcer) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// StaticBrowser returns a fixed list; used when discovery is disabled.
type StaticBrowser []domain.Printer

func (b StaticBrowser) Browse(context.Context) ([]domain.Printer, error) {
	return Dedupe(b), nil
}

var (
	_ Browser = (*Discovery)(nil)
	_ Browser = StaticBrowser(nil)
)
