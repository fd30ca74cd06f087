package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fileforge/fileforge/internal/auth"
	"github.com/fileforge/fileforge/internal/cache"
	"github.com/fileforge/fileforge/internal/metrics"
	"github.com/fileforge/fileforge/internal/model"
	"github.com/fileforge/fileforge/internal/repository"
	"github.com/fileforge/fileforge/internal/storage"
)

// fakeDB is an in-memory IdentityStore, ResourceStore, MergeTokenStore and
// MergeLedger with the same not-found and cascade behavior as Postgres.
type fakeDB struct {
	mu          sync.Mutex
	accounts    map[string]*model.Account
	identities  map[string]*model.Identity
	uploads     map[string]*model.Upload
	conversions map[string]*model.Conversion
	tokens      map[string]*model.MergeToken
	jobs        map[string]*model.MergeJob
	items       map[string][]*model.MergeItem

	// reassignErr fails the next reassignment of a resource id once.
	reassignErr map[string]error
	// deleteAccountErr fails DeleteAccount while set.
	deleteAccountErr error
	// onReassign runs before every reassignment, outside the lock, so it
	// can write to the store like a concurrent request would.
	onReassign func()
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		accounts:    make(map[string]*model.Account),
		identities:  make(map[string]*model.Identity),
		uploads:     make(map[string]*model.Upload),
		conversions: make(map[string]*model.Conversion),
		tokens:      make(map[string]*model.MergeToken),
		jobs:        make(map[string]*model.MergeJob),
		items:       make(map[string][]*model.MergeItem),
		reassignErr: make(map[string]error),
	}
}

func (db *fakeDB) CreateAccount(ctx context.Context, account *model.Account, identity *model.Identity) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.identityTaken(identity) {
		return repository.ErrIdentityTaken
	}
	a := *account
	a.Identities = nil
	db.accounts[a.ID] = &a
	i := *identity
	db.identities[i.ID] = &i
	return nil
}

func (db *fakeDB) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	a, ok := db.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	out := *a
	return &out, nil
}

func (db *fakeDB) UpdateAccountEmail(ctx context.Context, id, email string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	a, ok := db.accounts[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	a.Email = email
	return nil
}

func (db *fakeDB) DeleteAccount(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.deleteAccountErr != nil {
		return db.deleteAccountErr
	}
	if _, ok := db.accounts[id]; !ok {
		return repository.ErrAccountNotFound
	}
	db.deleteAccountLocked(id)
	return nil
}

func (db *fakeDB) DeleteEmptyAccount(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.deleteAccountErr != nil {
		return db.deleteAccountErr
	}
	if _, ok := db.accounts[id]; !ok {
		return repository.ErrAccountNotFound
	}
	for _, u := range db.uploads {
		if u.AccountID == id {
			return repository.ErrAccountNotEmpty
		}
	}
	for _, c := range db.conversions {
		if c.AccountID == id {
			return repository.ErrAccountNotEmpty
		}
	}
	db.deleteAccountLocked(id)
	return nil
}

// deleteAccountLocked applies the same cascade as the accounts foreign keys.
func (db *fakeDB) deleteAccountLocked(id string) {
	delete(db.accounts, id)
	for k, v := range db.identities {
		if v.AccountID == id {
			delete(db.identities, k)
		}
	}
	for k, v := range db.uploads {
		if v.AccountID == id {
			delete(db.uploads, k)
		}
	}
	for k, v := range db.conversions {
		if _, ok := db.uploads[v.UploadID]; v.AccountID == id || !ok {
			delete(db.conversions, k)
		}
	}
	for k, v := range db.tokens {
		if v.AccountID == id {
			delete(db.tokens, k)
		}
	}
}

func (db *fakeDB) beforeReassign() {
	db.mu.Lock()
	hook := db.onReassign
	db.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (db *fakeDB) CountAccounts(ctx context.Context) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return int64(len(db.accounts)), nil
}

func (db *fakeDB) ListIdentities(ctx context.Context, accountID string) ([]*model.Identity, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []*model.Identity
	for _, i := range db.identities {
		if i.AccountID == accountID {
			c := *i
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (db *fakeDB) GetIdentityByProviderUser(ctx context.Context, provider model.Provider, providerUserID string) (*model.Identity, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, i := range db.identities {
		if i.Provider == provider && i.ProviderUserID == providerUserID {
			c := *i
			return &c, nil
		}
	}
	return nil, repository.ErrIdentityNotFound
}

func (db *fakeDB) FindCollision(ctx context.Context, provider model.Provider, email, excludeAccountID string) (*model.Identity, *model.Account, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var (
		best      *model.Identity
		bestOwner *model.Account
	)
	for _, i := range db.identities {
		if i.Provider != provider || i.AccountID == excludeAccountID {
			continue
		}
		owner := db.accounts[i.AccountID]
		if model.NormalizeEmail(model.EffectiveEmail(i, owner)) != email {
			continue
		}
		if best == nil || owner.CreatedAt.Before(bestOwner.CreatedAt) {
			best, bestOwner = i, owner
		}
	}
	if best == nil {
		return nil, nil, repository.ErrIdentityNotFound
	}
	i, a := *best, *bestOwner
	return &i, &a, nil
}

func (db *fakeDB) LinkIdentity(ctx context.Context, identity *model.Identity) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.identityTaken(identity) {
		return repository.ErrIdentityTaken
	}
	i := *identity
	db.identities[i.ID] = &i
	if a, ok := db.accounts[i.AccountID]; ok && a.PrimaryProvider == "" {
		a.PrimaryProvider = i.Provider
	}
	return nil
}

func (db *fakeDB) UnlinkIdentity(ctx context.Context, accountID string, provider model.Provider) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	account, ok := db.accounts[accountID]
	if !ok {
		return repository.ErrAccountNotFound
	}

	var (
		matching  []string
		remaining []*model.Identity
	)
	for id, i := range db.identities {
		if i.AccountID != accountID {
			continue
		}
		if i.Provider == provider {
			matching = append(matching, id)
		} else {
			remaining = append(remaining, i)
		}
	}
	if len(matching) == 0 {
		return repository.ErrIdentityNotFound
	}
	if len(remaining) == 0 {
		return repository.ErrLastIdentity
	}
	for _, id := range matching {
		delete(db.identities, id)
	}
	if account.PrimaryProvider == provider {
		sort.Slice(remaining, func(a, b int) bool { return remaining[a].CreatedAt.Before(remaining[b].CreatedAt) })
		account.PrimaryProvider = remaining[0].Provider
	}
	return nil
}

func (db *fakeDB) identityTaken(identity *model.Identity) bool {
	for _, i := range db.identities {
		if i.Provider == identity.Provider && i.ProviderUserID == identity.ProviderUserID {
			return true
		}
	}
	return false
}

func (db *fakeDB) CreateUpload(ctx context.Context, upload *model.Upload) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.accounts[upload.AccountID]; !ok {
		return errors.New("foreign key violation")
	}
	u := *upload
	db.uploads[u.ID] = &u
	return nil
}

func (db *fakeDB) GetUpload(ctx context.Context, id string) (*model.Upload, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.uploads[id]
	if !ok {
		return nil, repository.ErrUploadNotFound
	}
	out := *u
	return &out, nil
}

func (db *fakeDB) ListUploads(ctx context.Context, accountID string) ([]*model.Upload, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []*model.Upload
	for _, u := range db.uploads {
		if u.AccountID == accountID {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (db *fakeDB) DeleteUpload(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.uploads[id]; !ok {
		return repository.ErrUploadNotFound
	}
	delete(db.uploads, id)
	for k, c := range db.conversions {
		if c.UploadID == id {
			delete(db.conversions, k)
		}
	}
	return nil
}

func (db *fakeDB) ReassignUpload(ctx context.Context, id string, fromAccountIDs []string, toAccountID, storagePath string) error {
	db.beforeReassign()

	db.mu.Lock()
	defer db.mu.Unlock()

	if err, ok := db.reassignErr[id]; ok {
		delete(db.reassignErr, id)
		return err
	}
	u, ok := db.uploads[id]
	if !ok || !contains(fromAccountIDs, u.AccountID) {
		return repository.ErrUploadNotFound
	}
	u.AccountID = toAccountID
	u.StoragePath = storagePath
	return nil
}

func (db *fakeDB) CreateConversion(ctx context.Context, c *model.Conversion) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	out := *c
	db.conversions[c.ID] = &out
	return nil
}

func (db *fakeDB) UpdateConversion(ctx context.Context, c *model.Conversion) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.conversions[c.ID]; !ok {
		return repository.ErrConversionNotFound
	}
	out := *c
	db.conversions[c.ID] = &out
	return nil
}

func (db *fakeDB) GetConversion(ctx context.Context, id string) (*model.Conversion, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.conversions[id]
	if !ok {
		return nil, repository.ErrConversionNotFound
	}
	out := *c
	return &out, nil
}

func (db *fakeDB) ListConversions(ctx context.Context, accountID string) ([]*model.Conversion, error) {
	return db.listConversions(func(c *model.Conversion) bool { return c.AccountID == accountID }), nil
}

func (db *fakeDB) ListConversionsByUpload(ctx context.Context, uploadID string) ([]*model.Conversion, error) {
	return db.listConversions(func(c *model.Conversion) bool { return c.UploadID == uploadID }), nil
}

func (db *fakeDB) listConversions(match func(*model.Conversion) bool) []*model.Conversion {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []*model.Conversion
	for _, c := range db.conversions {
		if match(c) {
			cc := *c
			out = append(out, &cc)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (db *fakeDB) ReassignConversion(ctx context.Context, id string, fromAccountIDs []string, toAccountID string, outputPath *string) error {
	db.beforeReassign()

	db.mu.Lock()
	defer db.mu.Unlock()

	if err, ok := db.reassignErr[id]; ok {
		delete(db.reassignErr, id)
		return err
	}
	c, ok := db.conversions[id]
	if !ok || !contains(fromAccountIDs, c.AccountID) {
		return repository.ErrConversionNotFound
	}
	c.AccountID = toAccountID
	if outputPath != nil {
		p := *outputPath
		c.OutputPath = &p
	}
	return nil
}

func (db *fakeDB) CountResources(ctx context.Context, accountID string) (int64, int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var uploads, conversions int64
	for _, u := range db.uploads {
		if u.AccountID == accountID {
			uploads++
		}
	}
	for _, c := range db.conversions {
		if c.AccountID == accountID {
			conversions++
		}
	}
	return uploads, conversions, nil
}

func (db *fakeDB) StorageStats(ctx context.Context, accountID string) (*model.StorageStats, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	stats := &model.StorageStats{}
	for _, u := range db.uploads {
		if u.AccountID == accountID {
			stats.TotalSize += u.FileSize
			stats.FileCount++
		}
	}
	for _, c := range db.conversions {
		if c.AccountID != accountID {
			continue
		}
		stats.ConversionCount++
		if c.Status == model.ConversionCompleted && c.OutputSize != nil {
			stats.TotalSize += *c.OutputSize
		}
	}
	return stats, nil
}

func (db *fakeDB) ReplaceMergeToken(ctx context.Context, token *model.MergeToken) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for k, v := range db.tokens {
		if v.AccountID == token.AccountID {
			delete(db.tokens, k)
		}
	}
	t := *token
	db.tokens[t.CodeHash] = &t
	return nil
}

func (db *fakeDB) GetMergeTokenByHash(ctx context.Context, codeHash string) (*model.MergeToken, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, ok := db.tokens[codeHash]
	if !ok {
		return nil, repository.ErrMergeTokenNotFound
	}
	out := *t
	return &out, nil
}

func (db *fakeDB) ClaimMergeToken(ctx context.Context, codeHash, accountID string) (*model.MergeToken, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, ok := db.tokens[codeHash]
	if !ok || t.AccountID != accountID {
		return nil, repository.ErrMergeTokenNotFound
	}
	delete(db.tokens, codeHash)
	return t, nil
}

func (db *fakeDB) DeleteMergeToken(ctx context.Context, codeHash string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.tokens, codeHash)
	return nil
}

func (db *fakeDB) DeleteMergeTokensForAccounts(ctx context.Context, accountIDs []string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var n int64
	for k, v := range db.tokens {
		if contains(accountIDs, v.AccountID) {
			delete(db.tokens, k)
			n++
		}
	}
	return n, nil
}

func (db *fakeDB) CreateMergeJob(ctx context.Context, job *model.MergeJob) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, j := range db.jobs {
		if j.SourceAccountID == job.SourceAccountID && j.Status.IsOpen() {
			return repository.ErrMergeJobExists
		}
	}
	j := *job
	db.jobs[j.ID] = &j
	return nil
}

func (db *fakeDB) GetMergeJob(ctx context.Context, id string) (*model.MergeJob, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	j, ok := db.jobs[id]
	if !ok {
		return nil, repository.ErrMergeJobNotFound
	}
	out := *j
	return &out, nil
}

func (db *fakeDB) GetOpenMergeJob(ctx context.Context, sourceAccountID string) (*model.MergeJob, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, j := range db.jobs {
		if j.SourceAccountID == sourceAccountID && j.Status.IsOpen() {
			out := *j
			return &out, nil
		}
	}
	return nil, repository.ErrMergeJobNotFound
}

func (db *fakeDB) UpdateMergeJob(ctx context.Context, job *model.MergeJob) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.jobs[job.ID]; !ok {
		return repository.ErrMergeJobNotFound
	}
	j := *job
	db.jobs[j.ID] = &j
	return nil
}

func (db *fakeDB) SnapshotMergeItems(ctx context.Context, jobID, sourceAccountID string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	have := make(map[string]bool)
	for _, it := range db.items[jobID] {
		have[string(it.Kind)+"/"+it.ResourceID] = true
	}

	var n int64
	add := func(kind model.MergeItemKind, id string) {
		if have[string(kind)+"/"+id] {
			return
		}
		db.items[jobID] = append(db.items[jobID], &model.MergeItem{
			JobID:      jobID,
			Kind:       kind,
			ResourceID: id,
			Status:     model.MergeItemPending,
			UpdatedAt:  time.Now().UTC(),
		})
		n++
	}
	for _, id := range sortedKeys(db.uploads, func(u *model.Upload) bool { return u.AccountID == sourceAccountID }) {
		add(model.MergeItemUpload, id)
	}
	for _, id := range sortedKeys(db.conversions, func(c *model.Conversion) bool { return c.AccountID == sourceAccountID }) {
		add(model.MergeItemConversion, id)
	}
	return n, nil
}

func (db *fakeDB) ListMergeItems(ctx context.Context, jobID string, statuses ...model.MergeItemStatus) ([]*model.MergeItem, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []*model.MergeItem
	for _, it := range db.items[jobID] {
		if len(statuses) > 0 && !containsStatus(statuses, it.Status) {
			continue
		}
		c := *it
		out = append(out, &c)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Kind == model.MergeItemUpload && out[b].Kind != model.MergeItemUpload
	})
	return out, nil
}

func (db *fakeDB) UpdateMergeItem(ctx context.Context, item *model.MergeItem) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for i, it := range db.items[item.JobID] {
		if it.Kind == item.Kind && it.ResourceID == item.ResourceID {
			c := *item
			db.items[item.JobID][i] = &c
			return nil
		}
	}
	return errors.New("merge item not found")
}

func sortedKeys[T any](m map[string]T, match func(T) bool) []string {
	var keys []string
	for k, v := range m {
		if match(v) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsStatus(list []model.MergeItemStatus, s model.MergeItemStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// fakeCache is an in-memory SessionStore, OAuthStateStore,
// PendingLinkStore and MergeLocker.
type fakeCache struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	states   map[string]*model.OAuthState
	pending  map[string]*model.PendingLink
	locks    map[string]string
	seq      int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		sessions: make(map[string]*model.Session),
		states:   make(map[string]*model.OAuthState),
		pending:  make(map[string]*model.PendingLink),
		locks:    make(map[string]string),
	}
}

func (c *fakeCache) SaveSession(ctx context.Context, session *model.Session, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := *session
	c.sessions[s.TokenHash] = &s
	return nil
}

func (c *fakeCache) GetSession(ctx context.Context, tokenHash string) (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[tokenHash]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	out := *s
	return &out, nil
}

func (c *fakeCache) DeleteSession(ctx context.Context, tokenHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, tokenHash)
	return nil
}

func (c *fakeCache) DeleteAccountSessions(ctx context.Context, accountID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, s := range c.sessions {
		if s.AccountID == accountID {
			delete(c.sessions, k)
		}
	}
	return nil
}

func (c *fakeCache) SaveOAuthState(ctx context.Context, state string, value *model.OAuthState, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := *value
	c.states[state] = &v
	return nil
}

func (c *fakeCache) ConsumeOAuthState(ctx context.Context, state string) (*model.OAuthState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.states[state]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	delete(c.states, state)
	return v, nil
}

func (c *fakeCache) SavePendingLink(ctx context.Context, link *model.PendingLink, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := *link
	c.pending[l.AccountID] = &l
	return nil
}

func (c *fakeCache) GetPendingLink(ctx context.Context, accountID string) (*model.PendingLink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.pending[accountID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	out := *l
	return &out, nil
}

func (c *fakeCache) DeletePendingLink(ctx context.Context, accountID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, accountID)
	return nil
}

func (c *fakeCache) AcquireMergeLock(ctx context.Context, sourceAccountID string, ttl time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.locks[sourceAccountID]; held {
		return "", false, nil
	}
	c.seq++
	token := fmt.Sprintf("lock-%d", c.seq)
	c.locks[sourceAccountID] = token
	return token, true, nil
}

func (c *fakeCache) ReleaseMergeLock(ctx context.Context, sourceAccountID, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locks[sourceAccountID] == token {
		delete(c.locks, sourceAccountID)
	}
	return nil
}

// flakyBlobs wraps a MemoryStore and fails operations on chosen paths.
type flakyBlobs struct {
	*storage.MemoryStore

	mu          sync.Mutex
	failUpload  map[string]int // path -> remaining failures
	failDelete  map[string]bool
	failExists  bool
	uploadCalls int
}

func newFlakyBlobs() *flakyBlobs {
	return &flakyBlobs{
		MemoryStore: storage.NewMemoryStore(),
		failUpload:  make(map[string]int),
		failDelete:  make(map[string]bool),
	}
}

func (b *flakyBlobs) Upload(ctx context.Context, path string, blob *storage.Blob) error {
	b.mu.Lock()
	b.uploadCalls++
	if n := b.failUpload[path]; n > 0 {
		b.failUpload[path] = n - 1
		b.mu.Unlock()
		return errors.New("simulated upload failure")
	}
	b.mu.Unlock()
	return b.MemoryStore.Upload(ctx, path, blob)
}

func (b *flakyBlobs) Delete(ctx context.Context, path string) error {
	b.mu.Lock()
	fail := b.failDelete[path]
	b.mu.Unlock()
	if fail {
		return errors.New("simulated delete failure")
	}
	return b.MemoryStore.Delete(ctx, path)
}

func (b *flakyBlobs) Exists(ctx context.Context, path string) (bool, error) {
	b.mu.Lock()
	fail := b.failExists
	b.mu.Unlock()
	if fail {
		return false, errors.New("simulated exists failure")
	}
	return b.MemoryStore.Exists(ctx, path)
}

func (b *flakyBlobs) has(t *testing.T, path string) bool {
	t.Helper()
	ok, err := b.MemoryStore.Exists(context.Background(), path)
	if err != nil {
		t.Fatalf("Exists(%q) failed: %v", path, err)
	}
	return ok
}

// recordingPublisher collects published events synchronously.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.AccountEvent
}

func (p *recordingPublisher) PublishAsync(event *model.AccountEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []model.AccountEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.AccountEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// mergeFixture wires a MergeService over fakes.
type mergeFixture struct {
	db      *fakeDB
	cache   *fakeCache
	blobs   *flakyBlobs
	events  *recordingPublisher
	metrics *metrics.InMemoryRecorder
	svc     *MergeService

	clock time.Time
}

func newMergeFixture(t *testing.T) *mergeFixture {
	t.Helper()

	f := &mergeFixture{
		db:      newFakeDB(),
		cache:   newFakeCache(),
		blobs:   newFlakyBlobs(),
		events:  &recordingPublisher{},
		metrics: metrics.NewInMemory(),
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.svc = NewMergeService(MergeDeps{
		Identities: f.db,
		Resources:  f.db,
		Tokens:     f.db,
		Ledger:     f.db,
		Blobs:      f.blobs,
		Locker:     f.cache,
		Sessions:   f.cache,
		Pending:    f.cache,
		Events:     f.events,
		Hasher:     auth.NewCodeHasher("test-pepper"),
		Metrics:    f.metrics,
	})
	return f
}

func (f *mergeFixture) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

// addAccount creates an account with one identity. profileEmail may be
// empty to exercise the account-email fallback.
func (f *mergeFixture) addAccount(t *testing.T, id, email string, provider model.Provider, providerUserID, profileEmail string) *model.Account {
	t.Helper()

	at := f.tick()
	account := &model.Account{ID: id, Email: email, PrimaryProvider: provider, CreatedAt: at, UpdatedAt: at}
	identity := &model.Identity{
		ID:             id + "-" + string(provider),
		AccountID:      id,
		Provider:       provider,
		ProviderUserID: providerUserID,
		Profile:        profileFor(provider, providerUserID, profileEmail),
		CreatedAt:      at,
	}
	if err := f.db.CreateAccount(context.Background(), account, identity); err != nil {
		t.Fatalf("CreateAccount(%s) failed: %v", id, err)
	}
	return account
}

func (f *mergeFixture) linkIdentity(t *testing.T, accountID string, provider model.Provider, providerUserID, profileEmail string) {
	t.Helper()

	identity := &model.Identity{
		ID:             accountID + "-" + string(provider),
		AccountID:      accountID,
		Provider:       provider,
		ProviderUserID: providerUserID,
		Profile:        profileFor(provider, providerUserID, profileEmail),
		CreatedAt:      f.tick(),
	}
	if err := f.db.LinkIdentity(context.Background(), identity); err != nil {
		t.Fatalf("LinkIdentity failed: %v", err)
	}
}

func profileFor(provider model.Provider, providerUserID, email string) model.Profile {
	if provider == model.ProviderDiscord {
		return &model.DiscordProfile{ID: providerUserID, Username: "user" + providerUserID, Email: email, Verified: true}
	}
	return &model.GitHubProfile{Login: "user" + providerUserID, Email: email}
}

func (f *mergeFixture) addUpload(t *testing.T, accountID, id, filename string) *model.Upload {
	t.Helper()

	at := f.tick()
	upload := &model.Upload{
		ID:               id,
		AccountID:        accountID,
		OriginalFilename: filename,
		FileSize:         int64(len(id)),
		FileType:         "image/png",
		StoragePath:      accountID + "/" + id + "-" + filename,
		CreatedAt:        at,
		UpdatedAt:        at,
	}
	if err := f.db.CreateUpload(context.Background(), upload); err != nil {
		t.Fatalf("CreateUpload failed: %v", err)
	}
	if err := f.blobs.MemoryStore.Upload(context.Background(), upload.StoragePath, &storage.Blob{Data: []byte(id)}); err != nil {
		t.Fatalf("seed blob failed: %v", err)
	}
	return upload
}

// addConversion adds a completed conversion with an output blob, or a
// pending one without output when completed is false.
func (f *mergeFixture) addConversion(t *testing.T, upload *model.Upload, id string, completed bool) *model.Conversion {
	t.Helper()

	conv := &model.Conversion{
		ID:             id,
		UploadID:       upload.ID,
		AccountID:      upload.AccountID,
		OriginalFormat: "png",
		TargetFormat:   "jpg",
		Status:         model.ConversionPending,
		CreatedAt:      f.tick(),
	}
	if completed {
		out := upload.AccountID + "/converted/" + id + ".jpg"
		conv.Complete(out, 3, f.clock)
		if err := f.blobs.MemoryStore.Upload(context.Background(), out, &storage.Blob{Data: []byte("out")}); err != nil {
			t.Fatalf("seed output blob failed: %v", err)
		}
	}
	if err := f.db.CreateConversion(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversion failed: %v", err)
	}
	return conv
}

func (f *mergeFixture) accountExists(id string) bool {
	_, err := f.db.GetAccount(context.Background(), id)
	return err == nil
}

func (f *mergeFixture) upload(t *testing.T, id string) *model.Upload {
	t.Helper()
	u, err := f.db.GetUpload(context.Background(), id)
	if err != nil {
		t.Fatalf("GetUpload(%s) failed: %v", id, err)
	}
	return u
}

func (f *mergeFixture) conversion(t *testing.T, id string) *model.Conversion {
	t.Helper()
	c, err := f.db.GetConversion(context.Background(), id)
	if err != nil {
		t.Fatalf("GetConversion(%s) failed: %v", id, err)
	}
	return c
}
