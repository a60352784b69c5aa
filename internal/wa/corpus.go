package wa

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matheus3301/wpprelay/internal/store"
	"go.uber.org/zap"
)

// Corpus is a directory of webhook payload documents (*.json). It is read
// fresh on every call; nothing is cached.
type Corpus struct {
	dir    string
	logger *zap.Logger
}

// NewCorpus returns a corpus rooted at dir.
func NewCorpus(dir string, logger *zap.Logger) *Corpus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Corpus{dir: dir, logger: logger}
}

// Dir returns the corpus directory.
func (c *Corpus) Dir() string { return c.dir }

// Documents parses every payload file in name order. Files that fail to
// read or parse are logged and skipped.
func (c *Corpus) Documents() ([]*Document, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read payload dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	docs := make([]*Document, 0, len(names))
	for _, name := range names {
		doc, err := c.parseFile(name)
		if err != nil {
			c.logger.Warn("skipping payload file", zap.String("file", name), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Corpus) parseFile(name string) (*Document, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(data)
	var perr *ParseError
	if errors.As(err, &perr) {
		perr.Source = name
	}
	return doc, err
}

// Records returns all normalized records across the corpus, in file order.
func (c *Corpus) Records() ([]Record, error) {
	docs, err := c.Documents()
	if err != nil {
		return nil, err
	}
	var records []Record
	for _, d := range docs {
		records = append(records, d.Records...)
	}
	return records, nil
}

// Contacts returns the contact directory. The first occurrence of an id wins.
func (c *Corpus) Contacts() ([]store.Contact, error) {
	docs, err := c.Documents()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var contacts []store.Contact
	for _, d := range docs {
		for _, ct := range d.Contacts {
			if seen[ct.ContactID] {
				continue
			}
			seen[ct.ContactID] = true
			contacts = append(contacts, ct)
		}
	}
	return contacts, nil
}

// Messages replays the whole corpus in memory the way the engine replays it
// into a store: the first message with a given provider id wins, and status
// records rewrite messages seen before them.
func (c *Corpus) Messages() ([]store.Message, error) {
	records, err := c.Records()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int)
	var msgs []store.Message
	for _, r := range records {
		switch {
		case r.Message != nil:
			if _, ok := index[r.Message.ProviderID]; ok {
				continue
			}
			index[r.Message.ProviderID] = len(msgs)
			msgs = append(msgs, *r.Message)
		case r.Status != nil:
			if i, ok := index[r.Status.TargetID]; ok {
				msgs[i].Status = r.Status.Status
			}
		}
	}
	return msgs, nil
}

// MessagesFor returns the payload-derived messages of one contact, in file
// order. Status records are not applied. Messages without a contact are
// never part of a thread.
func (c *Corpus) MessagesFor(contactID string) ([]store.Message, error) {
	if contactID == unknownContactID {
		return nil, nil
	}
	docs, err := c.Documents()
	if err != nil {
		return nil, err
	}
	var msgs []store.Message
	for _, d := range docs {
		for _, m := range d.Messages() {
			if m.ContactID == contactID {
				msgs = append(msgs, m)
			}
		}
	}
	return msgs, nil
}
