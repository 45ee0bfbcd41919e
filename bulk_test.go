package bptfile

import (
	"fmt"
	"testing"

	assertion "github.com/stretchr/testify/assert"
)

type testEntry struct {
	key   int32
	value []byte
}

type sliceIterator struct {
	entries []testEntry
	i       int
}

func (it *sliceIterator) Next() (int32, []byte, bool, error) {
	if it.i >= len(it.entries) {
		return 0, nil, false, nil
	}
	e := it.entries[it.i]
	it.i++
	return e.key, e.value, true, nil
}

func sequentialEntries(n int) []testEntry {
	entries := make([]testEntry, n)
	for i := range entries {
		entries[i] = testEntry{key: int32(i + 1), value: []byte(fmt.Sprintf("%d", i+1))}
	}
	return entries
}

func TestBulkLoadLookup(t *testing.T) {
	assert := assertion.New(t)
	db, err := Open(testPath(t), 0644, &Options{NoSync: true})
	assert.NoError(err)
	defer db.Close()

	entries := sequentialEntries(10000)
	assert.NoError(db.BulkLoad(&sliceIterator{entries: entries}))
	assert.NoError(db.Check())

	for _, e := range entries {
		val, err := db.Get(e.key)
		assert.NoError(err)
		want := normalizeValue(e.value)
		assert.Equal(want[:], val)
	}
	_, err = db.Get(10001)
	assert.Equal(ErrNotFound, err)
	_, err = db.Get(0)
	assert.Equal(ErrNotFound, err)

	st, err := db.Stats()
	assert.NoError(err)
	assert.Equal(int64(10000), st.KeyCount)
}

func TestBulkLoadPacksLeaves(t *testing.T) {
	assert := assertion.New(t)
	db, err := Open(testPath(t), 0644, &Options{NoSync: true})
	assert.NoError(err)
	defer db.Close()

	// Three full leaves and one partial.
	n := LeafCapacity*3 + 10
	assert.NoError(db.BulkLoad(&sliceIterator{entries: sequentialEntries(n)}))

	leaf, err := db.leftmostLeaf()
	assert.NoError(err)
	counts := []int{}
	for {
		counts = append(counts, int(leaf.count))
		if leaf.next == 0 {
			break
		}
		leaf, err = db.readLeaf(leaf.next)
		assert.NoError(err)
	}
	assert.Equal([]int{LeafCapacity, LeafCapacity, LeafCapacity, 10}, counts)
}

func TestBulkLoadUnsortedRejected(t *testing.T) {
	assert := assertion.New(t)
	db, err := Open(testPath(t), 0644, nil)
	assert.NoError(err)
	defer db.Close()

	it := &sliceIterator{entries: []testEntry{
		{1, []byte("a")},
		{3, []byte("c")},
		{2, []byte("b")},
	}}
	assert.Equal(ErrUnsortedInput, db.BulkLoad(it))
}

func TestBulkLoadDuplicatesAccepted(t *testing.T) {
	assert := assertion.New(t)
	db, err := Open(testPath(t), 0644, nil)
	assert.NoError(err)
	defer db.Close()

	it := &sliceIterator{entries: []testEntry{
		{1, []byte("a")},
		{2, []byte("b1")},
		{2, []byte("b2")},
		{3, []byte("c")},
	}}
	assert.NoError(db.BulkLoad(it))

	// Lookup resolves to the first occurrence.
	val, err := db.Get(2)
	assert.NoError(err)
	assert.Equal([]byte("b1\x00\x00\x00\x00\x00\x00"), val)

	st, err := db.Stats()
	assert.NoError(err)
	assert.Equal(int64(4), st.KeyCount)
}

func TestBulkLoadEmptyInput(t *testing.T) {
	assert := assertion.New(t)
	db, err := Open(testPath(t), 0644, nil)
	assert.NoError(err)
	defer db.Close()

	assert.NoError(db.Insert(9, []byte("old")))
	assert.NoError(db.BulkLoad(&sliceIterator{}))

	// The rebuilt tree is a single empty leaf; the old entry is gone.
	_, err = db.Get(9)
	assert.Equal(ErrNotFound, err)
	st, err := db.Stats()
	assert.NoError(err)
	assert.Equal(1, st.Height)
	assert.Equal(int64(0), st.KeyCount)
	assert.NoError(db.Check())
}

func TestBulkLoadReplacesExistingTree(t *testing.T) {
	assert := assertion.New(t)
	db, err := Open(testPath(t), 0644, &Options{NoSync: true})
	assert.NoError(err)
	defer db.Close()

	for k := int32(100); k < 200; k++ {
		assert.NoError(db.Insert(k, []byte("old")))
	}
	assert.NoError(db.BulkLoad(&sliceIterator{entries: sequentialEntries(50)}))
	assert.NoError(db.Check())

	_, err = db.Get(150)
	assert.Equal(ErrNotFound, err)
	val, err := db.Get(25)
	assert.NoError(err)
	assert.Equal([]byte("25\x00\x00\x00\x00\x00\x00"), val)
}

func TestBulkLoadMultiLevel(t *testing.T) {
	assert := assertion.New(t)
	db, err := Open(testPath(t), 0644, &Options{NoSync: true})
	assert.NoError(err)
	defer db.Close()

	// Enough leaves to need two internal levels above them.
	n := LeafCapacity * (InternalCapacity + 2)
	assert.NoError(db.BulkLoad(&sliceIterator{entries: sequentialEntries(n)}))
	assert.NoError(db.Check())

	st, err := db.Stats()
	assert.NoError(err)
	assert.Equal(3, st.Height)
	assert.Equal(int64(n), st.KeyCount)

	for _, k := range []int32{1, int32(n / 2), int32(n)} {
		_, err := db.Get(k)
		assert.NoError(err)
	}
}

func TestBulkEquivalence(t *testing.T) {
	assert := assertion.New(t)

	entries := sequentialEntries(2500)

	bulk, err := Open(testPath(t), 0644, &Options{NoSync: true})
	assert.NoError(err)
	defer bulk.Close()
	assert.NoError(bulk.BulkLoad(&sliceIterator{entries: entries}))

	manual, err := Open(testPath(t), 0644, &Options{NoSync: true})
	assert.NoError(err)
	defer manual.Close()
	for _, e := range entries {
		assert.NoError(manual.Insert(e.key, e.value))
	}

	assert.NoError(bulk.Check())
	assert.NoError(manual.Check())

	// Same mapping, same leaf-chain content fingerprint, identical Get
	// answers, regardless of construction path.
	bst, err := bulk.Stats()
	assert.NoError(err)
	mst, err := manual.Stats()
	assert.NoError(err)
	assert.Equal(mst.KeyCount, bst.KeyCount)
	assert.Equal(mst.Fingerprint, bst.Fingerprint)

	for _, e := range entries {
		bv, err := bulk.Get(e.key)
		assert.NoError(err)
		mv, err := manual.Get(e.key)
		assert.NoError(err)
		assert.Equal(mv, bv)
	}
}
