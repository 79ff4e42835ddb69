package scraper

import "sync"

// Progress is a point-in-time snapshot of a scrape run.
type Progress struct {
	CurrentLetter  string   `json:"current_letter"`
	CurrentItem    string   `json:"current_item"`
	ItemsProcessed int      `json:"items_processed"`
	ItemsSkipped   int      `json:"items_skipped"`
	TotalItems     int      `json:"total_items"`
	Errors         []string `json:"errors"`
}

// tracker is the scraper-owned mutable progress state. All mutation goes
// through these methods; readers only ever see copies.
type tracker struct {
	mu sync.Mutex
	p  Progress
}

func (t *tracker) setLetter(letter string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.p.CurrentLetter = letter
}

func (t *tracker) setItem(title string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.p.CurrentItem = title
}

func (t *tracker) addTotal(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.p.TotalItems += n
}

func (t *tracker) processed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.p.ItemsProcessed++
}

func (t *tracker) skipped() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.p.ItemsSkipped++
}

func (t *tracker) addError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.p.Errors = append(t.p.Errors, msg)
}

func (t *tracker) snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.p
	p.Errors = append([]string(nil), t.p.Errors...)

	return p
}
