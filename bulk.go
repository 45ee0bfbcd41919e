package bptfile

import (
	log "github.com/sirupsen/logrus"
)

// Iterator yields key/value pairs for BulkLoad. Next returns ok=false once
// the stream is exhausted. Keys must be non-decreasing.
type Iterator interface {
	Next() (key int32, value []byte, ok bool, err error)
}

type childRef struct {
	key int32
	pid PageID
}

// BulkLoad replaces the tree with one built bottom-up from a sorted
// stream. Every leaf except possibly the last is filled to capacity, the
// sibling chain is threaded left to right, and each upper level is packed
// the same way until a single node remains. Pages of the previous tree are
// left unreferenced in the file.
func (db *DB) BulkLoad(it Iterator) error {
	db.rwlock.Lock()
	defer db.rwlock.Unlock()

	if !db.opened {
		return ErrDatabaseNotOpen
	}
	if db.readOnly {
		return ErrDatabaseReadOnly
	}

	var childList []childRef
	leaf := &leafPage{slots: make([]leafEntry, 0, LeafCapacity)}
	var prevLeafPID PageID

	flushLeaf := func() error {
		pid, err := db.allocPage()
		if err != nil {
			return err
		}
		if err := db.writeLeaf(pid, leaf); err != nil {
			return err
		}

		if prevLeafPID != 0 {
			prev, err := db.readLeaf(prevLeafPID)
			if err != nil {
				return err
			}
			prev.next = pid
			if err := db.writeLeaf(prevLeafPID, prev); err != nil {
				return err
			}
		}
		prevLeafPID = pid

		childList = append(childList, childRef{key: leaf.slots[0].key, pid: pid})
		leaf = &leafPage{slots: make([]leafEntry, 0, LeafCapacity)}
		return nil
	}

	var processed int64
	var prevKey int32
	firstKeySet := false

	for {
		key, value, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if firstKeySet && key < prevKey {
			return ErrUnsortedInput
		}
		firstKeySet = true
		prevKey = key

		leaf.slots = append(leaf.slots, leafEntry{key: key, value: normalizeValue(value)})
		leaf.count++

		if int(leaf.count) == LeafCapacity {
			if err := flushLeaf(); err != nil {
				return err
			}
		}
		processed++
	}
	if leaf.count > 0 {
		if err := flushLeaf(); err != nil {
			return err
		}
	}

	if len(childList) == 0 {
		rootLeaf, err := db.newLeaf(0)
		if err != nil {
			return err
		}
		db.sb.root = rootLeaf
		if err := db.writeSuper(); err != nil {
			return err
		}
		db.strictCheck()
		return nil
	}

	level := childList
	levels := 1
	for len(level) > 1 {
		next, err := db.buildLevel(level)
		if err != nil {
			return err
		}
		level = next
		levels++
	}

	db.sb.root = level[0].pid
	if err := db.writeSuper(); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"entries": processed,
		"leaves":  len(childList),
		"levels":  levels,
		"root":    db.sb.root,
	}).Debug("bulk load complete")
	db.strictCheck()
	return nil
}

// buildLevel packs one internal level above lower, grouping the leftmost
// child plus up to InternalCapacity separator entries per node and
// repointing every grouped child's parent.
func (db *DB) buildLevel(lower []childRef) ([]childRef, error) {
	var upper []childRef
	i := 0
	for i < len(lower) {
		nodeID, err := db.allocPage()
		if err != nil {
			return nil, err
		}
		node := &internalPage{
			leftmost: lower[i].pid,
			slots:    make([]internalEntry, 0, InternalCapacity),
		}

		j := i + 1
		for len(node.slots) < InternalCapacity && j < len(lower) {
			node.slots = append(node.slots, internalEntry{
				key:        lower[j].key,
				rightChild: lower[j].pid,
			})
			j++
		}
		node.count = uint16(len(node.slots))

		if err := db.setParent(node.leftmost, nodeID); err != nil {
			return nil, err
		}
		for k := 0; k < int(node.count); k++ {
			if err := db.setParent(node.slots[k].rightChild, nodeID); err != nil {
				return nil, err
			}
		}

		if err := db.writeInternal(nodeID, node); err != nil {
			return nil, err
		}

		// A trailing singleton group has no slots; promote the group's
		// own first key.
		promoteKey := lower[i].key
		if node.count > 0 {
			promoteKey = node.slots[0].key
		}
		upper = append(upper, childRef{key: promoteKey, pid: nodeID})

		i = j
	}
	return upper, nil
}
