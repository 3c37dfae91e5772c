package threads

import (
	"time"

	"github.com/huandu/go-clone"
)

// UntitledTitle is displayed for threads that have not been titled yet.
const UntitledTitle = "Untitled"

// MaxTitleLength is the number of characters kept from the first question.
const MaxTitleLength = 40

type Thread struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
}

func (t Thread) DisplayTitle() string {
	if t.Title == "" {
		return UntitledTitle
	}
	return t.Title
}

func (t Thread) HasTitle() bool {
	return t.Title != "" && t.Title != UntitledTitle
}

// Index is the single persisted record of a tenant's threads. Threads are kept
// in insertion order and ids are unique.
type Index struct {
	Tenant    string    `json:"tenant" yaml:"tenant"`
	Version   uint64    `json:"version" yaml:"version"`
	Threads   []Thread  `json:"threads" yaml:"threads"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

func NewIndex(tenant string) *Index {
	return &Index{
		Tenant:  tenant,
		Threads: []Thread{},
	}
}

func (idx *Index) Clone() *Index {
	if idx == nil {
		return nil
	}
	return clone.Clone(idx).(*Index)
}

func (idx *Index) Find(id string) int {
	for i, t := range idx.Threads {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (idx *Index) Contains(id string) bool {
	return idx.Find(id) >= 0
}

func (idx *Index) Remove(id string) bool {
	i := idx.Find(id)
	if i < 0 {
		return false
	}
	idx.Threads = append(idx.Threads[:i], idx.Threads[i+1:]...)
	return true
}

// normalize drops empty and duplicate ids, keeping the first occurrence.
func (idx *Index) normalize() {
	seen := map[string]struct{}{}
	threads := make([]Thread, 0, len(idx.Threads))
	for _, t := range idx.Threads {
		if t.ID == "" {
			continue
		}
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		threads = append(threads, t)
	}
	idx.Threads = threads
}

// TruncateTitle keeps the first MaxTitleLength characters of text.
func TruncateTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxTitleLength {
		return text
	}
	return string(runes[:MaxTitleLength])
}
