package adapter

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	m "vss2git.dev/pkg/vss2git/internal/model"
)

// JournalFileName is the default journal file looked up inside an archive
// directory.
const JournalFileName = "journal.yaml"

// journalEvent is one recorded archive operation. The journal is the logical
// object model of a legacy archive serialized as YAML by whatever decoded the
// on-disk binary format; this loader replays it into a MemSource.
type journalEvent struct {
	At      time.Time `yaml:"at"`
	User    string    `yaml:"user"`
	Comment string    `yaml:"comment"`
	Op      string    `yaml:"op"`
	Path    string    `yaml:"path"`
	To      string    `yaml:"to,omitempty"`
	Content string    `yaml:"content,omitempty"`
	// Content64 carries binary content that cannot round-trip through YAML
	// text.
	Content64 string `yaml:"content64,omitempty"`
	Version   int    `yaml:"version,omitempty"`
	Name      string `yaml:"name,omitempty"`
}

type journalFile struct {
	Events []journalEvent `yaml:"events"`
}

// LoadArchive reads a serialized archive journal and replays it into a
// MemSource. The path may name the journal file itself or a directory
// containing one.
func LoadArchive(path string) (*MemSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	if info.IsDir() {
		path = filepath.Join(path, JournalFileName)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archive journal: %w", err)
	}

	var jf journalFile
	if err := yaml.Unmarshal(raw, &jf); err != nil {
		return nil, fmt.Errorf("parse archive journal %s: %w", path, err)
	}

	src := NewMemSource()
	for i, ev := range jf.Events {
		if err := applyEvent(src, ev); err != nil {
			return nil, fmt.Errorf("journal event %d (%s %s): %w", i, ev.Op, ev.Path, err)
		}
	}

	return src, nil
}

func applyEvent(src *MemSource, ev journalEvent) error {
	p := m.Path(ev.Path)

	content := []byte(ev.Content)
	if ev.Content64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(ev.Content64)
		if err != nil {
			return fmt.Errorf("decode content64: %w", err)
		}

		content = decoded
	}

	switch ev.Op {
	case "mkdir":
		src.AddProject(ev.At, ev.User, ev.Comment, p)
		return nil
	case "add":
		src.AddFile(ev.At, ev.User, ev.Comment, p, content)
		return nil
	case "edit":
		return src.Edit(ev.At, ev.User, ev.Comment, p, content)
	case "rename":
		return src.Rename(ev.At, ev.User, ev.Comment, p, ev.To)
	case "move":
		return src.Move(ev.At, ev.User, ev.Comment, p, m.Path(ev.To))
	case "share":
		return src.Share(ev.At, ev.User, ev.Comment, p, m.Path(ev.To))
	case "branch":
		return src.Branch(ev.At, ev.User, ev.Comment, p)
	case "pin":
		return src.Pin(ev.At, ev.User, ev.Comment, p, ev.Version)
	case "unpin":
		return src.Unpin(ev.At, ev.User, ev.Comment, p)
	case "delete":
		return src.Delete(ev.At, ev.User, ev.Comment, p)
	case "recover":
		return src.Recover(ev.At, ev.User, ev.Comment, p)
	case "destroy":
		return src.Destroy(ev.At, ev.User, ev.Comment, p)
	case "label":
		return src.Label(ev.At, ev.User, ev.Comment, p, ev.Name)
	}

	return fmt.Errorf("unknown journal op %q", ev.Op)
}
