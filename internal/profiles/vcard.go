package profiles

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-vcard"
)

// ImportVCards seeds profiles from a vCard export (e.g. an address book
// dump). The vCard UID becomes the profile ID when no X-CHAT-ID
// property is present; the formatted name becomes the alias. Existing
// profiles keep their alias and only gain missing fields. Returns the
// number of cards imported.
func (s *Store) ImportVCards(ctx context.Context, r io.Reader) (int, error) {
	dec := vcard.NewDecoder(r)
	imported := 0

	for {
		card, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("decode vcard: %w", err)
		}

		name := card.PreferredValue(vcard.FieldFormattedName)
		if name == "" {
			continue
		}

		id := card.Value("X-CHAT-ID")
		if id == "" {
			id = card.Value(vcard.FieldUID)
		}
		if id == "" {
			s.logger.Debug("skipping vcard without usable ID", "name", name)
			continue
		}

		existing, err := s.Get(ctx, id)
		if err != nil {
			return imported, err
		}
		if existing == nil {
			if err := s.Ensure(ctx, id, name); err != nil {
				return imported, err
			}
		}

		if rel := card.Value("X-RELATIONSHIP"); rel != "" {
			if err := s.SetRelationship(ctx, id, strings.TrimSpace(rel)); err != nil {
				return imported, err
			}
		}

		imported++
	}

	s.logger.Info("vcard import complete", "imported", imported)
	return imported, nil
}
