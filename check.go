package bptfile

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// Stats describes the current shape of the tree.
type Stats struct {
	// Height is the number of pages on a root-to-leaf path.
	Height int
	// PageCount is the total number of pages ever allocated, including
	// the superblock and pages of earlier trees left unreferenced by bulk
	// rebuilds.
	PageCount uint64
	// KeyCount is the number of entries reachable through the leaf chain.
	KeyCount int64
	// Fingerprint is an xxhash64 digest over all entries in leaf chain
	// order. Two trees holding the same mapping produce the same
	// fingerprint regardless of how they were built.
	Fingerprint uint64
}

// Stats walks the leftmost path for the height and the sibling chain for
// the key count and content fingerprint.
func (db *DB) Stats() (Stats, error) {
	db.rwlock.Lock()
	defer db.rwlock.Unlock()

	if !db.opened {
		return Stats{}, ErrDatabaseNotOpen
	}

	st := Stats{PageCount: db.sb.pageCount}

	pid := db.sb.root
	for {
		var buf [PageSize]byte
		if err := db.pager.readPage(pid, buf[:]); err != nil {
			return Stats{}, err
		}
		st.Height++
		if buf[0] == pageKindLeaf {
			break
		}
		n, err := unmarshalInternal(buf[:])
		if err != nil {
			return Stats{}, err
		}
		pid = n.leftmost
	}

	// pid is now the leftmost leaf; digest the chain.
	digest := xxhash.New()
	var kb [4]byte
	for pid != 0 {
		leaf, err := db.readLeaf(pid)
		if err != nil {
			return Stats{}, err
		}
		for i := 0; i < int(leaf.count); i++ {
			binary.LittleEndian.PutUint32(kb[:], uint32(leaf.slots[i].key))
			_, _ = digest.Write(kb[:])
			_, _ = digest.Write(leaf.slots[i].value[:])
			st.KeyCount++
		}
		pid = leaf.next
	}
	st.Fingerprint = digest.Sum64()

	return st, nil
}

// Check validates the structural invariants of the whole tree: in-page key
// order, separator bounds, parent back-pointers, and the leaf sibling
// chain. It returns the first violation found.
func (db *DB) Check() error {
	db.rwlock.Lock()
	defer db.rwlock.Unlock()

	if !db.opened {
		return ErrDatabaseNotOpen
	}
	return db.check()
}

func (db *DB) check() error {
	size, err := db.pager.fileSize()
	if err != nil {
		return err
	}
	if uint64(size/PageSize) != db.sb.pageCount {
		return errors.Errorf("page count %d does not match file size %d", db.sb.pageCount, size)
	}
	if db.sb.root == 0 || uint64(db.sb.root) >= db.sb.pageCount {
		return errors.Errorf("superblock root %d out of range", db.sb.root)
	}

	var leaves []PageID
	if err := db.checkSubtree(db.sb.root, 0, nil, nil, &leaves); err != nil {
		return err
	}

	// The chain threaded through next must enumerate exactly the leaves
	// found by descent, in the same order.
	pid := leaves[0]
	for i, want := range leaves {
		if pid != want {
			return errors.Errorf("sibling chain visits page %d, expected %d", pid, want)
		}
		leaf, err := db.readLeaf(pid)
		if err != nil {
			return err
		}
		pid = leaf.next
		if i == len(leaves)-1 && leaf.next != 0 {
			return errors.Errorf("last leaf %d has dangling next %d", want, leaf.next)
		}
	}
	return nil
}

// checkSubtree validates the subtree at pid. Every key in it must satisfy
// lower <= key < upper (nil bounds are unbounded), and the page's stored
// parent must equal wantParent.
func (db *DB) checkSubtree(pid, wantParent PageID, lower, upper *int32, leaves *[]PageID) error {
	var buf [PageSize]byte
	if err := db.pager.readPage(pid, buf[:]); err != nil {
		return err
	}

	inBounds := func(k int32) bool {
		if lower != nil && k < *lower {
			return false
		}
		if upper != nil && k >= *upper {
			return false
		}
		return true
	}

	if buf[0] == pageKindLeaf {
		leaf, err := unmarshalLeaf(buf[:])
		if err != nil {
			return err
		}
		if leaf.parent != wantParent {
			return errors.Errorf("leaf %d parent %d, expected %d", pid, leaf.parent, wantParent)
		}
		for i := 0; i < int(leaf.count); i++ {
			k := leaf.slots[i].key
			if i > 0 && leaf.slots[i-1].key >= k {
				return errors.Errorf("leaf %d keys not strictly increasing at slot %d", pid, i)
			}
			if !inBounds(k) {
				return errors.Errorf("leaf %d key %d outside separator bounds", pid, k)
			}
		}
		*leaves = append(*leaves, pid)
		return nil
	}

	node, err := unmarshalInternal(buf[:])
	if err != nil {
		return err
	}
	if node.parent != wantParent {
		return errors.Errorf("internal %d parent %d, expected %d", pid, node.parent, wantParent)
	}
	// count may be zero for the degenerate trailing node a bulk build
	// produces; leftmost must always point somewhere.
	if node.leftmost == 0 {
		return errors.Errorf("internal %d has no leftmost child", pid)
	}
	for i := 0; i < int(node.count); i++ {
		k := node.slots[i].key
		if i > 0 && node.slots[i-1].key >= k {
			return errors.Errorf("internal %d keys not strictly increasing at slot %d", pid, i)
		}
		if !inBounds(k) {
			return errors.Errorf("internal %d separator %d outside bounds", pid, k)
		}
	}

	for i := 0; i <= int(node.count); i++ {
		lo, hi := lower, upper
		if i > 0 {
			lo = &node.slots[i-1].key
		}
		if i < int(node.count) {
			hi = &node.slots[i].key
		}
		if err := db.checkSubtree(node.child(i), pid, lo, hi, leaves); err != nil {
			return err
		}
	}
	return nil
}
