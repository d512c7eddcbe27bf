// Package discovery finds audio servers announcing themselves over mDNS.
package discovery

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	// serviceName is the mDNS service audio servers register under
	serviceName = "_snapcast._tcp"

	defaultTimeout = 2 * time.Second
)

// Entry is one discovered server.
type Entry struct {
	Name string
	Host string
	Port int
}

// Browse queries the local network and returns the servers that answered
// within the context deadline (2s when the context carries none).
func Browse(ctx context.Context) ([]Entry, error) {
	timeout := defaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, ctx.Err()
		}
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	results := make([]Entry, 0, 4)
	collected := make(chan struct{})

	go func() {
		defer close(collected)
		for e := range entries {
			host := e.Host
			if e.AddrV4 != nil {
				host = e.AddrV4.String()
			}
			results = append(results, Entry{
				Name: cleanName(e.Name),
				Host: strings.TrimSuffix(host, "."),
				Port: e.Port,
			})
		}
	}()

	params := &mdns.QueryParam{
		Service:     serviceName,
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	}
	err := mdns.Query(params)
	close(entries)
	<-collected

	if err != nil {
		return nil, fmt.Errorf("mdns query failed: %w", err)
	}

	log.Printf("Discovery found %d server(s)", len(results))
	return results, nil
}

// First returns the first server to answer, or an error when none did.
func First(ctx context.Context) (Entry, error) {
	found, err := Browse(ctx)
	if err != nil {
		return Entry{}, err
	}
	if len(found) == 0 {
		return Entry{}, fmt.Errorf("no audio servers found")
	}
	return found[0], nil
}

// cleanName strips the service suffix from an instance name.
func cleanName(name string) string {
	name = strings.TrimSuffix(name, ".")
	if i := strings.Index(name, "."+serviceName); i >= 0 {
		name = name[:i]
	}
	return strings.ReplaceAll(name, "\\ ", " ")
}
