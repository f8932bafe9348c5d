package discovery

import (
	"context"
	"strings"

	"github.com/brutella/dnssd"
)

// DNSSDLookup browses service (for example "_p3d_http._tcp.local.") with
// multicast DNS. It blocks until ctx is done or the responder fails.
func DNSSDLookup(ctx context.Context, service string, add, remove func(Entry)) error {
	return dnssd.LookupType(ctx, service,
		func(e dnssd.BrowseEntry) { add(fromBrowseEntry(e)) },
		func(e dnssd.BrowseEntry) { remove(fromBrowseEntry(e)) },
	)
}

func fromBrowseEntry(e dnssd.BrowseEntry) Entry {
	return Entry{
		Instance: e.Name,
		Host:     strings.TrimSuffix(e.Host, "."),
		IPs:      e.IPs,
		Port:     e.Port,
		Text:     e.Text,
	}
}
