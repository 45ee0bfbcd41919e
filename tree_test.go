package bptfile

import (
	"fmt"
	"math/rand"
	"testing"

	assertion "github.com/stretchr/testify/assert"
)

func TestLeafSplitTrigger(t *testing.T) {
	assert := assertion.New(t)
	db, err := Open(testPath(t), 0644, nil)
	assert.NoError(err)
	defer db.Close()

	origLeaf := db.sb.root

	// One key beyond leaf capacity forces exactly one split.
	for k := int32(0); k <= int32(LeafCapacity); k++ {
		assert.NoError(db.Insert(k, []byte("v")))
	}

	root, err := db.readInternal(db.sb.root)
	assert.NoError(err)
	assert.Equal(uint16(1), root.count)
	assert.Equal(origLeaf, root.leftmost)

	left, err := db.readLeaf(root.leftmost)
	assert.NoError(err)
	right, err := db.readLeaf(root.slots[0].rightChild)
	assert.NoError(err)

	// The separator is the first key of the new right leaf, and the
	// sibling chain links left to right.
	assert.Equal(right.slots[0].key, root.slots[0].key)
	assert.Equal(root.slots[0].rightChild, left.next)
	assert.Equal(PageID(0), right.next)
	assert.Equal(int(LeafCapacity)+1, int(left.count)+int(right.count))

	for k := int32(0); k <= int32(LeafCapacity); k++ {
		val, err := db.Get(k)
		assert.NoError(err)
		assert.Equal([]byte{'v', 0, 0, 0, 0, 0, 0, 0}, val)
	}

	st, err := db.Stats()
	assert.NoError(err)
	assert.Equal(2, st.Height)
	assert.NoError(db.Check())
}

func TestManySequentialInserts(t *testing.T) {
	assert := assertion.New(t)
	db, err := Open(testPath(t), 0644, &Options{NoSync: true})
	assert.NoError(err)
	defer db.Close()

	const n = 5000
	for k := int32(0); k < n; k++ {
		assert.NoError(db.Insert(k, []byte(fmt.Sprintf("%d", k))))
	}
	assert.NoError(db.Check())

	for k := int32(0); k < n; k++ {
		val, err := db.Get(k)
		assert.NoError(err)
		assert.Equal(normalizeValue([]byte(fmt.Sprintf("%d", k))), normalizeValue(val))
	}

	st, err := db.Stats()
	assert.NoError(err)
	assert.Equal(int64(n), st.KeyCount)
	assert.True(st.Height >= 2)
}

func TestRandomOrderInserts(t *testing.T) {
	assert := assertion.New(t)
	db, err := Open(testPath(t), 0644, &Options{NoSync: true})
	assert.NoError(err)
	defer db.Close()

	rng := rand.New(rand.NewSource(1))
	keys := rng.Perm(3000)
	for _, k := range keys {
		assert.NoError(db.Insert(int32(k), []byte{byte(k)}))
	}
	assert.NoError(db.Check())

	for _, k := range keys {
		val, err := db.Get(int32(k))
		assert.NoError(err)
		assert.Equal(byte(k), val[0])
	}

	// The leaf chain enumerates every key in ascending order.
	st, err := db.Stats()
	assert.NoError(err)
	assert.Equal(int64(len(keys)), st.KeyCount)
}

func TestNegativeAndBoundaryKeys(t *testing.T) {
	assert := assertion.New(t)
	db, err := Open(testPath(t), 0644, nil)
	assert.NoError(err)
	defer db.Close()

	keys := []int32{-2147483648, -1, 0, 1, 2147483647}
	for i, k := range keys {
		assert.NoError(db.Insert(k, []byte{byte(i + 1)}))
	}
	for i, k := range keys {
		val, err := db.Get(k)
		assert.NoError(err)
		assert.Equal(byte(i+1), val[0])
	}
	assert.NoError(db.Check())
}

func TestInternalSplitGrowsHeight(t *testing.T) {
	assert := assertion.New(t)
	db, err := Open(testPath(t), 0644, &Options{NoSync: true})
	assert.NoError(err)
	defer db.Close()

	// Ascending inserts leave split leaves half full ((LeafCapacity+1)/2
	// entries each), so this produces over InternalCapacity+1 leaves and
	// forces the root internal node itself to split.
	n := ((LeafCapacity + 1) / 2) * (InternalCapacity + 2)
	for k := 0; k < n; k++ {
		assert.NoError(db.Insert(int32(k), []byte{1}))
	}
	assert.NoError(db.Check())

	st, err := db.Stats()
	assert.NoError(err)
	assert.Equal(3, st.Height)
	assert.Equal(int64(n), st.KeyCount)

	for _, k := range []int32{0, int32(n / 3), int32(n - 1)} {
		val, err := db.Get(k)
		assert.NoError(err)
		assert.Equal(byte(1), val[0])
	}
}

func TestStrictModePanicsOnNothing(t *testing.T) {
	assert := assertion.New(t)
	db, err := Open(testPath(t), 0644, &Options{StrictMode: true, NoSync: true})
	assert.NoError(err)
	defer db.Close()

	// A healthy insert path never trips the strict check.
	for k := int32(0); k < int32(LeafCapacity)*3; k++ {
		assert.NoError(db.Insert(k, []byte("ok")))
	}
}
