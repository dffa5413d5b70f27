package universe

import (
	"sync"
	"testing"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	testingpkg "github.com/aristath/tradeguard/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupInstrumentRepo(t *testing.T, exchange string) *InstrumentRepository {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, database.NameLedger)
	t.Cleanup(cleanup)
	return NewInstrumentRepository(db.Conn(), exchange, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestNormalizeSymbol(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
		valid    bool
	}{
		{"shop", "SHOP", true},
		{"  ry ", "RY", true},
		{"BRK.B", "BRK.B", true},
		{"RCI-B", "RCI-B", true},
		{"", "", false},
		{"   ", "", false},
		{"AB CD", "", false},
		{"DROP;TABLE", "", false},
		{"ABCDEFGHIJKLMNOPQRSTUVWXYZ", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := NormalizeSymbol(tc.input)
			if !tc.valid {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidOrder)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestInstrumentRepository_GetOrCreate(t *testing.T) {
	repo := setupInstrumentRepo(t, "")

	inst, err := repo.GetOrCreate("shop")
	require.NoError(t, err)
	assert.NotZero(t, inst.ID)
	assert.Equal(t, "SHOP", inst.Symbol)
	assert.Equal(t, DefaultExchange, inst.Exchange)
	assert.False(t, inst.CreatedAt.IsZero())

	again, err := repo.GetOrCreate("SHOP")
	require.NoError(t, err)
	assert.Equal(t, inst.ID, again.ID)

	byID, err := repo.GetByID(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "SHOP", byID.Symbol)
}

func TestInstrumentRepository_CustomExchange(t *testing.T) {
	repo := setupInstrumentRepo(t, "NYSE")

	inst, err := repo.GetOrCreate("IBM")
	require.NoError(t, err)
	assert.Equal(t, "NYSE", inst.Exchange)
}

func TestInstrumentRepository_NotFound(t *testing.T) {
	repo := setupInstrumentRepo(t, "")

	inst, err := repo.GetBySymbol("NOPE")
	require.NoError(t, err)
	assert.Nil(t, inst)

	byID, err := repo.GetByID(42)
	require.NoError(t, err)
	assert.Nil(t, byID)
}

func TestInstrumentRepository_InvalidSymbol(t *testing.T) {
	repo := setupInstrumentRepo(t, "")

	_, err := repo.GetOrCreate("bad symbol")
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestInstrumentRepository_ConcurrentCreate(t *testing.T) {
	repo := setupInstrumentRepo(t, "")

	var wg sync.WaitGroup
	ids := make(chan int64, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, err := repo.GetOrCreate("ENB")
			if assert.NoError(t, err) {
				ids <- inst.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	var first int64
	for id := range ids {
		if first == 0 {
			first = id
		}
		assert.Equal(t, first, id)
	}

	all, err := repo.List()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
