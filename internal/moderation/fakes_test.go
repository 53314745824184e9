package moderation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"wikimod/internal/attribution"
	"wikimod/internal/content"
	"wikimod/internal/db"
	"wikimod/internal/models"
	"wikimod/internal/stash"
)

// fakeQueue is an in-memory Queue.
type fakeQueue struct {
	mu      sync.Mutex
	entries map[int64]*models.QueueEntry
	locked  map[int64]bool

	beforeReject func(id int64)
	deleteErr    error
}

func newFakeQueue(entries ...*models.QueueEntry) *fakeQueue {
	q := &fakeQueue{entries: make(map[int64]*models.QueueEntry), locked: make(map[int64]bool)}
	for _, e := range entries {
		q.entries[e.ID] = e
	}
	return q
}

func (q *fakeQueue) get(id int64) *models.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries[id]
}

func (q *fakeQueue) GetQueueEntry(_ context.Context, id int64) (*models.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return nil, db.ErrQueueEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (q *fakeQueue) LockEntry(_ context.Context, id int64) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.locked[id] {
		return nil, db.ErrEntryLocked
	}
	q.locked[id] = true
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.locked, id)
	}, nil
}

func (q *fakeQueue) MarkConflict(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[id]; ok {
		e.Conflict = true
	}
	return nil
}

func (q *fakeQueue) DeleteQueueEntry(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deleteErr != nil {
		return q.deleteErr
	}
	delete(q.entries, id)
	return nil
}

func (q *fakeQueue) selectIDs(userText string, keep func(*models.QueueEntry) bool) []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	var matched []*models.QueueEntry
	for _, e := range q.entries {
		if e.UserText == userText && !e.IsMerged() && keep(e) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].IsUpload() != matched[j].IsUpload() {
			return matched[i].IsUpload()
		}
		return matched[i].ID < matched[j].ID
	})
	ids := make([]int64, 0, len(matched))
	for _, e := range matched {
		ids = append(ids, e.ID)
	}
	return ids
}

func (q *fakeQueue) SelectApprovable(_ context.Context, userText string) ([]int64, error) {
	return q.selectIDs(userText, func(e *models.QueueEntry) bool { return !e.Rejected && !e.Conflict }), nil
}

func (q *fakeQueue) SelectRejectable(_ context.Context, userText string) ([]int64, error) {
	return q.selectIDs(userText, func(e *models.QueueEntry) bool { return !e.Rejected }), nil
}

func (q *fakeQueue) RejectEntry(_ context.Context, id int64, moderator *models.User) (bool, error) {
	if q.beforeReject != nil {
		q.beforeReject(id)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok || e.IsMerged() {
		return false, nil
	}
	e.Rejected, e.RejectedByID, e.RejectedByText, e.Preloadable = true, moderator.ID, moderator.Name, false
	return true, nil
}

func (q *fakeQueue) RejectEntries(_ context.Context, ids []int64, moderator *models.User) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for _, id := range ids {
		e, ok := q.entries[id]
		if !ok || e.Rejected || e.IsMerged() {
			continue
		}
		e.Rejected, e.RejectedBatch, e.RejectedByID, e.RejectedByText, e.Preloadable = true, true, moderator.ID, moderator.Name, false
		n++
	}
	return n, nil
}

func (q *fakeQueue) MarkMerged(_ context.Context, id, revID int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok || e.IsMerged() {
		return false, nil
	}
	e.MergedRevID, e.Conflict, e.Preloadable = &revID, false, false
	return true, nil
}

func (q *fakeQueue) AuthorOf(_ context.Context, id int64) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return "", db.ErrQueueEntryNotFound
	}
	return e.UserText, nil
}

type fakeRevision struct {
	title     models.Title
	text      string
	author    *models.User
	timestamp time.Time
	origin    models.Origin
}

// fakeContent is an in-memory ContentStore.
type fakeContent struct {
	mu        sync.Mutex
	latest    map[models.Title]int64
	revisions map[int64]*fakeRevision
	stash     map[string]bool
	nextID    int64
	committed []models.Title
	commitErr error
}

func newFakeContent() *fakeContent {
	return &fakeContent{
		latest:    make(map[models.Title]int64),
		revisions: make(map[int64]*fakeRevision),
		stash:     make(map[string]bool),
		nextID:    1000,
	}
}

// seed stores a revision directly, bypassing commit checks.
func (c *fakeContent) seed(id int64, title models.Title, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revisions[id] = &fakeRevision{title: title, text: text}
	c.latest[title] = id
}

func (c *fakeContent) text(title models.Title) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revisions[c.latest[title]].text
}

func (c *fakeContent) PageExists(_ context.Context, title models.Title) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.latest[title]
	return ok, nil
}

func (c *fakeContent) CurrentRevisionID(_ context.Context, title models.Title) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest[title], nil
}

func (c *fakeContent) ContentAt(_ context.Context, revID int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rev, ok := c.revisions[revID]
	if !ok {
		return "", db.ErrRevisionNotFound
	}
	return rev.text, nil
}

var errNotBypassed = errors.New("commit would have been queued")

func (c *fakeContent) save(ctx context.Context, title models.Title, text string, base int64, author *models.User) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commitErr != nil {
		return 0, c.commitErr
	}
	if latest, ok := c.latest[title]; ok && latest != base {
		return 0, content.ErrEditConflict
	}
	origin, _ := attribution.FromContext(ctx)
	c.nextID++
	c.revisions[c.nextID] = &fakeRevision{title: title, text: text, author: author, timestamp: time.Now(), origin: origin}
	c.latest[title] = c.nextID
	c.committed = append(c.committed, title)
	return c.nextID, nil
}

func (c *fakeContent) CommitEdit(ctx context.Context, e models.EditCommit) (int64, error) {
	if !e.BypassModeration {
		return 0, errNotBypassed
	}
	return c.save(ctx, e.Title, e.Text, e.BaseRevID, e.Author)
}

func (c *fakeContent) CommitUpload(ctx context.Context, u models.UploadCommit) (int64, error) {
	if !u.BypassModeration {
		return 0, errNotBypassed
	}
	c.mu.Lock()
	if !c.stash[u.StashKey] {
		c.mu.Unlock()
		return 0, stash.ErrNotFound
	}
	delete(c.stash, u.StashKey)
	base := c.latest[u.Title]
	c.mu.Unlock()
	return c.save(ctx, u.Title, u.Description, base, u.Author)
}

func (c *fakeContent) CommitMove(ctx context.Context, m models.MoveCommit) (int64, error) {
	if !m.BypassModeration {
		return 0, errNotBypassed
	}
	c.mu.Lock()
	latest, ok := c.latest[m.From]
	if !ok {
		c.mu.Unlock()
		return 0, db.ErrPageNotFound
	}
	text := c.revisions[latest].text
	delete(c.latest, m.From)
	c.mu.Unlock()
	return c.save(ctx, m.To, text, 0, m.Author)
}

func (c *fakeContent) FinalizeRevision(_ context.Context, revID int64, ts time.Time, author *models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rev, ok := c.revisions[revID]
	if !ok {
		return db.ErrRevisionNotFound
	}
	rev.timestamp, rev.author = ts, author
	return nil
}

// Has makes fakeContent the Stash too, so uploads and the stash share state.
func (c *fakeContent) Has(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stash[key], nil
}

type fakeDirectory map[int64]*models.User

func (d fakeDirectory) ResolveActor(_ context.Context, id int64, name string) (*models.User, error) {
	if id == 0 {
		return models.NewAnonymous(name), nil
	}
	u, ok := d[id]
	if !ok {
		return nil, db.ErrUserNotFound
	}
	return u, nil
}

type fakeLog struct {
	mu      sync.Mutex
	entries []models.LogEntry
}

func (l *fakeLog) RecordLog(_ context.Context, e *models.LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *e)
	return nil
}

func (l *fakeLog) actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		out = append(out, e.Action)
	}
	return out
}

// countingMerger records how often the merge was attempted.
type countingMerger struct {
	calls  int
	result string
	ok     bool
}

func (m *countingMerger) Merge(_, _, _ string) (string, bool) {
	m.calls++
	return m.result, m.ok
}

type fakeInvalidator struct{ calls int }

func (f *fakeInvalidator) Invalidate(context.Context) error {
	f.calls++
	return nil
}

type fakeNotifier struct {
	approved []int64
	rejected []int64
}

func (f *fakeNotifier) NotifyApproved(_ context.Context, e *models.QueueEntry, _ int64) {
	f.approved = append(f.approved, e.ID)
}

func (f *fakeNotifier) NotifyRejected(_ context.Context, e *models.QueueEntry, _ *models.User) {
	f.rejected = append(f.rejected, e.ID)
}

// harness wires an Engine to fakes.
type harness struct {
	engine      *Engine
	queue       *fakeQueue
	content     *fakeContent
	log         *fakeLog
	invalidator *fakeInvalidator
	notifier    *fakeNotifier
	now         time.Time
}

var (
	testAuthor    = &models.User{ID: 7, Name: "Alice", Role: models.RoleUser, Email: "alice@example.com"}
	testModerator = &models.User{ID: 1, Name: "Mod", Role: models.RoleModerator}
)

func newHarness(merger Merger, entries ...*models.QueueEntry) *harness {
	h := &harness{
		queue:       newFakeQueue(entries...),
		content:     newFakeContent(),
		log:         &fakeLog{},
		invalidator: &fakeInvalidator{},
		notifier:    &fakeNotifier{},
		now:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	h.engine = NewEngine(Deps{
		Queue:       h.queue,
		Content:     h.content,
		Users:       fakeDirectory{testAuthor.ID: testAuthor, testModerator.ID: testModerator},
		Log:         h.log,
		Stash:       h.content,
		Merger:      merger,
		Invalidator: h.invalidator,
		Notifier:    h.notifier,
	}, DefaultReapprovalWindow)
	h.engine.now = func() time.Time { return h.now }
	return h
}

func editEntry(id int64, title models.Title, text string, base int64) *models.QueueEntry {
	return &models.QueueEntry{
		ID:          id,
		Timestamp:   time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC),
		UserID:      testAuthor.ID,
		UserText:    testAuthor.Name,
		Title:       title,
		Comment:     "queued edit",
		Origin:      models.Origin{IP: "192.0.2.7", XFF: "198.51.100.7", UserAgent: "author-agent"},
		PreloadID:   "[Alice",
		Payload:     &models.EditPayload{Text: text, BaseRevID: base},
		Preloadable: true,
	}
}

func uploadEntry(id int64, name, key string) *models.QueueEntry {
	e := editEntry(id, models.NewTitle(models.NSFile, name), "", 0)
	e.Payload = &models.UploadPayload{StashKey: key, Description: "uploaded " + name}
	return e
}
