package records

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taipei = time.FixedZone("CST", 8*3600)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, taipei)
}

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStoreFromClient(client, ""), mr
}

// storeContract runs the behaviour every backend must share.
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	oldID, err := store.Create(ctx, "diet", Record{Name: "舊便當", Calories: 700, User: "小明", Date: day(2026, 1, 1)})
	require.NoError(t, err)
	require.NotEmpty(t, oldID)

	_, err = store.Create(ctx, "diet", Record{Name: "新沙拉", Calories: 200, User: "小明", Date: day(2026, 3, 1)})
	require.NoError(t, err)

	_, err = store.Create(ctx, "exercise", Record{Name: "跑步 5 公里", User: "小明", Date: day(2026, 1, 1)})
	require.NoError(t, err)

	cutoff := day(2026, 2, 1)
	pages, err := store.QueryBefore(ctx, "diet", cutoff)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, oldID, pages[0].ID)
	assert.Equal(t, "diet", pages[0].Collection)
	assert.True(t, pages[0].Date.Equal(day(2026, 1, 1)))

	// The boundary is exclusive.
	pages, err = store.QueryBefore(ctx, "diet", day(2026, 1, 1))
	require.NoError(t, err)
	assert.Empty(t, pages)

	require.NoError(t, store.Archive(ctx, Page{ID: oldID, Collection: "diet"}))
	pages, err = store.QueryBefore(ctx, "diet", cutoff)
	require.NoError(t, err)
	assert.Empty(t, pages, "archived records are not returned again")

	// Archiving twice or archiving a missing record is not an error.
	require.NoError(t, store.Archive(ctx, Page{ID: oldID, Collection: "diet"}))
	require.NoError(t, store.Archive(ctx, Page{ID: "missing", Collection: "diet"}))

	pages, err = store.QueryBefore(ctx, "exercise", cutoff)
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	pages, err = store.QueryBefore(ctx, "nothing-here", cutoff)
	require.NoError(t, err)
	assert.Empty(t, pages)

	require.NoError(t, store.Close())
	_, err = store.Create(ctx, "diet", Record{Name: "x", Date: day(2026, 1, 1)})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	store, _ := newTestRedis(t)
	storeContract(t, store)
}

func TestInstrumentedStore(t *testing.T) {
	storeContract(t, NewInstrumented(NewMemoryStore()))
}

func TestMemoryStoreRecords(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, name := range []string{"早餐", "午餐", "晚餐"} {
		_, err := store.Create(ctx, "diet", Record{Name: name, Date: day(2026, 3, 1)})
		require.NoError(t, err)
	}

	recs := store.Records("diet")
	require.Len(t, recs, 3)
	assert.Equal(t, "早餐", recs[0].Name)
	assert.Equal(t, "晚餐", recs[2].Name)
	assert.Empty(t, store.Records("exercise"))
}

func TestMemoryStoreHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().Create(ctx, "diet", Record{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisStoreFields(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()

	rec := Record{
		Name:     "牛肉麵",
		Calories: 650,
		Protein:  30,
		Fat:      20.6,
		Carbs:    80,
		User:     "小華",
		Note:     "大碗",
		Date:     day(2026, 3, 14),
	}
	id, err := store.Create(ctx, "diet", rec)
	require.NoError(t, err)

	assert.True(t, mr.Exists("nutrilog:records:record:diet:"+id))

	got, archived, err := store.load(ctx, "diet", id)
	require.NoError(t, err)
	assert.False(t, archived)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.Fat, got.Fat)
	assert.Equal(t, rec.Note, got.Note)
	assert.True(t, rec.Date.Equal(got.Date))

	require.NoError(t, store.Archive(ctx, Page{ID: id, Collection: "diet"}))
	_, archived, err = store.load(ctx, "diet", id)
	require.NoError(t, err)
	assert.True(t, archived, "archived records are kept, only flagged")

	_, _, err = store.load(ctx, "diet", "missing")
	assert.Error(t, err)
}

func TestRedisStorePing(t *testing.T) {
	store, _ := newTestRedis(t)
	require.NoError(t, Ping(context.Background(), store))

	require.NoError(t, store.Close())
	assert.ErrorIs(t, Ping(context.Background(), store), ErrClosed)
}

func TestNewRedisStoreRequiresAddr(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{})
	assert.Error(t, err)
}

func TestFirestoreDocMapping(t *testing.T) {
	rec := Record{
		Name:     "便當",
		Calories: 700,
		Protein:  25,
		Fat:      30,
		Carbs:    90,
		User:     "小明",
		Note:     "排骨",
		Date:     day(2026, 3, 14),
	}

	doc := toFirestoreDoc(rec)
	assert.False(t, doc.Archived)
	assert.Nil(t, doc.ArchivedAt)
	assert.True(t, doc.CreatedAt.IsZero(), "created_at is filled in by the server")
	assert.Equal(t, rec.Name, doc.Name)
	assert.Equal(t, rec.Calories, doc.Calories)
	assert.Equal(t, rec.Carbs, doc.Carbs)
	assert.Equal(t, rec.User, doc.User)
	assert.Equal(t, rec.Note, doc.Note)
	assert.Equal(t, rec.Date, doc.Date)
}

func TestNewFirestoreStoreRequiresProject(t *testing.T) {
	_, err := NewFirestoreStore(context.Background(), FirestoreConfig{})
	assert.ErrorContains(t, err, "project ID is required")
}

func TestOpen(t *testing.T) {
	store, err := Open(context.Background(), Config{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = Open(context.Background(), Config{Backend: "sqlite"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestCollectionsFor(t *testing.T) {
	c := Collections{Diet: "diet-db"}

	got, err := c.For(KindDiet)
	require.NoError(t, err)
	assert.Equal(t, "diet-db", got)

	_, err = c.For(KindExercise)
	assert.ErrorIs(t, err, ErrCollectionNotConfigured)

	assert.Equal(t, "飲食", KindDiet.String())
	assert.Equal(t, "運動", KindExercise.String())
}
