// Package index builds the credential availability index shared with
// platform autofill surfaces. The index carries identifiers only; passwords
// and keys never leave the vault.
package index

import (
	"context"
	"net/url"
	"strings"

	"github.com/ivlasov/passvault/internal/logging"
	"github.com/ivlasov/passvault/internal/vault"
)

// Entry identifies one credential a platform surface may offer.
type Entry struct {
	// Domain is the credential's host for passwords, or the relying party
	// for passkeys.
	Domain   string
	Username string
	RecordID string
}

// Sink receives full replacements of the index. An empty slice means the
// index must be cleared.
type Sink interface {
	ReplaceIndex(ctx context.Context, entries []Entry) error
}

// Build derives the index from the current vault state. Deleted items are
// excluded; only password and passkey items contribute.
func Build(v *vault.Vault) []Entry {
	entries := []Entry{}
	for _, item := range v.Items {
		if item.Deleted() {
			continue
		}
		switch data := item.Data.(type) {
		case *vault.PasswordData:
			domain := firstHost(data.URLs)
			if domain == "" {
				continue
			}
			entries = append(entries, Entry{
				Domain:   domain,
				Username: data.Username,
				RecordID: item.ID,
			})
		case *vault.PasskeyData:
			if data.RelyingPartyID == "" {
				continue
			}
			entries = append(entries, Entry{
				Domain:   data.RelyingPartyID,
				Username: data.UserName,
				RecordID: item.ID,
			})
		}
	}
	return entries
}

// firstHost extracts the host from the first parseable URL. Bare hosts
// without a scheme are accepted as-is.
func firstHost(urls []string) string {
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		return u.Hostname()
	}
	return ""
}

// LogSink is a Sink for platforms without an autofill bridge. It records
// only the entry count, never the entries themselves.
type LogSink struct {
	logger logging.Logger
}

var _ Sink = (*LogSink)(nil)

func NewLogSink(logger logging.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) ReplaceIndex(ctx context.Context, entries []Entry) error {
	s.logger.Debug(ctx, "credential index replaced", "entries", len(entries))
	return nil
}
