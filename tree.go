package bptfile

// findLeaf descends from the root to the leaf responsible for key,
// visiting exactly one page per level.
func (db *DB) findLeaf(key int32) (PageID, error) {
	pid := db.sb.root
	for {
		var buf [PageSize]byte
		if err := db.pager.readPage(pid, buf[:]); err != nil {
			return 0, err
		}
		if buf[0] == pageKindLeaf {
			return pid, nil
		}
		n, err := unmarshalInternal(buf[:])
		if err != nil {
			return 0, err
		}
		pid = n.child(n.childIndex(key))
	}
}

// leftmostLeaf descends leftmost pointers to the first leaf in key order.
func (db *DB) leftmostLeaf() (*leafPage, error) {
	pid := db.sb.root
	for {
		var buf [PageSize]byte
		if err := db.pager.readPage(pid, buf[:]); err != nil {
			return nil, err
		}
		if buf[0] == pageKindLeaf {
			return unmarshalLeaf(buf[:])
		}
		n, err := unmarshalInternal(buf[:])
		if err != nil {
			return nil, err
		}
		pid = n.leftmost
	}
}

func (db *DB) insert(key int32, v8 [ValueSize]byte) error {
	leafID, err := db.findLeaf(key)
	if err != nil {
		return err
	}
	leaf, err := db.readLeaf(leafID)
	if err != nil {
		return err
	}

	pos := leaf.search(key)
	if pos < int(leaf.count) && leaf.slots[pos].key == key {
		// Upsert: overwrite in place.
		leaf.slots[pos].value = v8
		return db.writeLeaf(leafID, leaf)
	}

	if int(leaf.count) < LeafCapacity {
		leaf.slots = append(leaf.slots, leafEntry{})
		copy(leaf.slots[pos+1:], leaf.slots[pos:])
		leaf.slots[pos] = leafEntry{key: key, value: v8}
		leaf.count++
		return db.writeLeaf(leafID, leaf)
	}

	return db.splitLeafAndInsert(leafID, leaf, key, v8)
}

// splitLeafAndInsert partitions a full leaf plus the new entry into two
// leaves, rethreads the sibling chain, and promotes the first key of the
// right leaf to the parent.
func (db *DB) splitLeafAndInsert(leafID PageID, leaf *leafPage, key int32, v8 [ValueSize]byte) error {
	pos := leaf.search(key)
	tmp := make([]leafEntry, 0, int(leaf.count)+1)
	tmp = append(tmp, leaf.slots[:pos]...)
	tmp = append(tmp, leafEntry{key: key, value: v8})
	tmp = append(tmp, leaf.slots[pos:]...)

	total := len(tmp)
	leftCount := total / 2

	rightID, err := db.newLeaf(leaf.parent)
	if err != nil {
		return err
	}
	right := &leafPage{
		count:  uint16(total - leftCount),
		parent: leaf.parent,
		next:   leaf.next,
		slots:  tmp[leftCount:],
	}

	leaf.count = uint16(leftCount)
	leaf.slots = tmp[:leftCount]
	leaf.next = rightID

	if err := db.writeLeaf(leafID, leaf); err != nil {
		return err
	}
	if err := db.writeLeaf(rightID, right); err != nil {
		return err
	}

	sepKey := right.slots[0].key
	return db.insertIntoParent(leafID, sepKey, rightID)
}

// insertIntoParent inserts the separator produced by a split of leftPID
// into its parent, splitting internal nodes recursively and growing the
// tree by one level when the root itself splits.
func (db *DB) insertIntoParent(leftPID PageID, sepKey int32, rightPID PageID) error {
	parentID, err := db.parentOf(leftPID)
	if err != nil {
		return err
	}

	if parentID == 0 && db.sb.root == leftPID {
		rootID, err := db.newInternal(0)
		if err != nil {
			return err
		}
		root := &internalPage{
			count:    1,
			leftmost: leftPID,
			slots:    []internalEntry{{key: sepKey, rightChild: rightPID}},
		}
		if err := db.writeInternal(rootID, root); err != nil {
			return err
		}
		if err := db.setParent(leftPID, rootID); err != nil {
			return err
		}
		if err := db.setParent(rightPID, rootID); err != nil {
			return err
		}
		db.sb.root = rootID
		return db.writeSuper()
	}

	parent, err := db.readInternal(parentID)
	if err != nil {
		return err
	}
	pos := 0
	for pos < int(parent.count) && parent.slots[pos].key < sepKey {
		pos++
	}

	if int(parent.count) == InternalCapacity {
		return db.splitInternalAndInsert(parentID, parent, pos, sepKey, rightPID)
	}

	parent.slots = append(parent.slots, internalEntry{})
	copy(parent.slots[pos+1:], parent.slots[pos:])
	parent.slots[pos] = internalEntry{key: sepKey, rightChild: rightPID}
	parent.count++
	if err := db.writeInternal(parentID, parent); err != nil {
		return err
	}
	return db.setParent(rightPID, parentID)
}

// splitInternalAndInsert splits a full internal node around the middle
// entry of the provisional slot list. The middle entry leaves both halves:
// its key is promoted and its right child becomes the new right node's
// leftmost.
func (db *DB) splitInternalAndInsert(nodeID PageID, node *internalPage, pos int, sepKey int32, rightPID PageID) error {
	tmp := make([]internalEntry, 0, int(node.count)+1)
	tmp = append(tmp, node.slots[:pos]...)
	tmp = append(tmp, internalEntry{key: sepKey, rightChild: rightPID})
	tmp = append(tmp, node.slots[pos:]...)

	total := len(tmp)
	leftCount := total / 2
	promoteKey := tmp[leftCount].key

	rightNodeID, err := db.newInternal(node.parent)
	if err != nil {
		return err
	}
	rightNode := &internalPage{
		count:    uint16(total - leftCount - 1),
		parent:   node.parent,
		leftmost: tmp[leftCount].rightChild,
		slots:    tmp[leftCount+1:],
	}

	node.count = uint16(leftCount)
	node.slots = tmp[:leftCount]

	if err := db.writeInternal(nodeID, node); err != nil {
		return err
	}
	if err := db.writeInternal(rightNodeID, rightNode); err != nil {
		return err
	}

	if err := db.setParent(rightNode.leftmost, rightNodeID); err != nil {
		return err
	}
	for i := 0; i < int(rightNode.count); i++ {
		if err := db.setParent(rightNode.slots[i].rightChild, rightNodeID); err != nil {
			return err
		}
	}

	return db.insertIntoParent(nodeID, promoteKey, rightNodeID)
}

// parentOf reads the parent pointer of a page of either kind.
func (db *DB) parentOf(pid PageID) (PageID, error) {
	var buf [PageSize]byte
	if err := db.pager.readPage(pid, buf[:]); err != nil {
		return 0, err
	}
	if buf[0] == pageKindLeaf {
		p, err := unmarshalLeaf(buf[:])
		if err != nil {
			return 0, err
		}
		return p.parent, nil
	}
	n, err := unmarshalInternal(buf[:])
	if err != nil {
		return 0, err
	}
	return n.parent, nil
}

// setParent repoints the parent field of a page of either kind.
func (db *DB) setParent(child, parent PageID) error {
	var buf [PageSize]byte
	if err := db.pager.readPage(child, buf[:]); err != nil {
		return err
	}
	if buf[0] == pageKindLeaf {
		p, err := unmarshalLeaf(buf[:])
		if err != nil {
			return err
		}
		p.parent = parent
		return db.writeLeaf(child, p)
	}
	n, err := unmarshalInternal(buf[:])
	if err != nil {
		return err
	}
	n.parent = parent
	return db.writeInternal(child, n)
}
