package bptfile

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// Magic identifies a bptfile index. Foreign or fresh files fail the
	// magic check and are (re)initialized on writable open.
	Magic uint64 = 0x4250545245453133

	// PageSize is the fixed on-disk page size. All file I/O is done in
	// whole pages.
	PageSize = 4096

	// ValueSize is the fixed width of a stored value. Shorter values are
	// zero padded, longer ones truncated.
	ValueSize = 8
)

// Page header layout, little endian:
//
//	off 0  is_leaf  u8   1 for leaf, 0 for internal
//	off 1  count    u16  occupied slots
//	off 3  parent   u64  page id of parent, 0 for the root
//	off 11 next     u64  (leaf) right sibling, 0 at chain end
//	off 11 leftmost u64  (internal) child holding keys < slots[0].key
//	off 19 slots    count entries
const (
	pageKindInternal = 0
	pageKindLeaf     = 1

	pageHeaderSize = 1 + 2 + 8 + 8

	leafEntrySize     = 4 + ValueSize
	internalEntrySize = 4 + 8

	// LeafCapacity and InternalCapacity are derived, never hard coded, so
	// a page size or header change re-derives them consistently.
	LeafCapacity     = (PageSize - pageHeaderSize) / leafEntrySize
	InternalCapacity = (PageSize - pageHeaderSize) / internalEntrySize
)

// Superblock layout (page 0), little endian:
//
//	off 0  magic          u64
//	off 8  root           u64
//	off 16 free_list_head u64  reserved, always 0
//	off 24 page_count     u64
//	off 32 ..             reserved zeros
type superBlock struct {
	magic        uint64
	root         PageID
	freeListHead PageID
	pageCount    uint64
}

// PageID addresses a page in the backing file. Page 0 is the superblock.
type PageID uint64

type leafEntry struct {
	key   int32
	value [ValueSize]byte
}

type leafPage struct {
	count  uint16
	parent PageID
	next   PageID
	slots  []leafEntry
}

type internalEntry struct {
	key        int32
	rightChild PageID
}

type internalPage struct {
	count    uint16
	parent   PageID
	leftmost PageID
	slots    []internalEntry
}

func marshalSuper(sb *superBlock, buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint64(buf[0:8], sb.magic)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(sb.root))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(sb.freeListHead))
	binary.LittleEndian.PutUint64(buf[24:32], sb.pageCount)
}

func unmarshalSuper(buf []byte) superBlock {
	return superBlock{
		magic:        binary.LittleEndian.Uint64(buf[0:8]),
		root:         PageID(binary.LittleEndian.Uint64(buf[8:16])),
		freeListHead: PageID(binary.LittleEndian.Uint64(buf[16:24])),
		pageCount:    binary.LittleEndian.Uint64(buf[24:32]),
	}
}

func marshalLeaf(p *leafPage, buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	buf[0] = pageKindLeaf
	binary.LittleEndian.PutUint16(buf[1:3], p.count)
	binary.LittleEndian.PutUint64(buf[3:11], uint64(p.parent))
	binary.LittleEndian.PutUint64(buf[11:19], uint64(p.next))
	off := pageHeaderSize
	for i := 0; i < int(p.count); i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(p.slots[i].key))
		copy(buf[off+4:off+4+ValueSize], p.slots[i].value[:])
		off += leafEntrySize
	}
}

func unmarshalLeaf(buf []byte) (*leafPage, error) {
	if buf[0] != pageKindLeaf {
		return nil, errors.Wrapf(ErrCorruptPage, "expected leaf discriminator, got %d", buf[0])
	}
	p := &leafPage{
		count:  binary.LittleEndian.Uint16(buf[1:3]),
		parent: PageID(binary.LittleEndian.Uint64(buf[3:11])),
		next:   PageID(binary.LittleEndian.Uint64(buf[11:19])),
	}
	if int(p.count) > LeafCapacity {
		return nil, errors.Wrapf(ErrCorruptPage, "leaf count %d exceeds capacity %d", p.count, LeafCapacity)
	}
	p.slots = make([]leafEntry, p.count, LeafCapacity)
	off := pageHeaderSize
	for i := 0; i < int(p.count); i++ {
		p.slots[i].key = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
		copy(p.slots[i].value[:], buf[off+4:off+4+ValueSize])
		off += leafEntrySize
	}
	return p, nil
}

func marshalInternal(n *internalPage, buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	buf[0] = pageKindInternal
	binary.LittleEndian.PutUint16(buf[1:3], n.count)
	binary.LittleEndian.PutUint64(buf[3:11], uint64(n.parent))
	binary.LittleEndian.PutUint64(buf[11:19], uint64(n.leftmost))
	off := pageHeaderSize
	for i := 0; i < int(n.count); i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(n.slots[i].key))
		binary.LittleEndian.PutUint64(buf[off+4:off+12], uint64(n.slots[i].rightChild))
		off += internalEntrySize
	}
}

func unmarshalInternal(buf []byte) (*internalPage, error) {
	if buf[0] != pageKindInternal {
		return nil, errors.Wrapf(ErrCorruptPage, "expected internal discriminator, got %d", buf[0])
	}
	n := &internalPage{
		count:    binary.LittleEndian.Uint16(buf[1:3]),
		parent:   PageID(binary.LittleEndian.Uint64(buf[3:11])),
		leftmost: PageID(binary.LittleEndian.Uint64(buf[11:19])),
	}
	if int(n.count) > InternalCapacity {
		return nil, errors.Wrapf(ErrCorruptPage, "internal count %d exceeds capacity %d", n.count, InternalCapacity)
	}
	n.slots = make([]internalEntry, n.count, InternalCapacity)
	off := pageHeaderSize
	for i := 0; i < int(n.count); i++ {
		n.slots[i].key = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
		n.slots[i].rightChild = PageID(binary.LittleEndian.Uint64(buf[off+4 : off+12]))
		off += internalEntrySize
	}
	return n, nil
}

// search returns the index of the first slot whose key is >= key.
func (p *leafPage) search(key int32) int {
	lo, hi := 0, int(p.count)
	for lo < hi {
		m := (lo + hi) / 2
		if p.slots[m].key < key {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return lo
}

// childIndex returns the descent slot for key: the smallest index i with
// key < slots[i].key, or count when no separator is larger. A key equal to
// a separator descends right, where the split placed it.
func (n *internalPage) childIndex(key int32) int {
	lo, hi := 0, int(n.count)
	for lo < hi {
		m := (lo + hi) / 2
		if key < n.slots[m].key {
			hi = m
		} else {
			lo = m + 1
		}
	}
	return lo
}

// child maps a descent slot to a page id.
func (n *internalPage) child(idx int) PageID {
	if idx == 0 {
		return n.leftmost
	}
	return n.slots[idx-1].rightChild
}

func normalizeValue(v []byte) (out [ValueSize]byte) {
	copy(out[:], v)
	return out
}
