package rofat

import (
	"encoding/binary"
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aligator/rofat/checkpoint"
)

// ClusterID is the number of a cluster. 0 and 1 are reserved, data clusters start at 2.
type ClusterID uint32

const (
	firstDataCluster ClusterID = 2

	// clusterMask removes the 4 reserved top bits of a FAT32 entry.
	clusterMask ClusterID = 0x0FFFFFFF
)

// fatEntry is the raw value of an entry of the FAT.
type fatEntry uint32

// Value returns the entry without the reserved top bits.
func (e fatEntry) Value() uint32 {
	return uint32(e) & uint32(clusterMask)
}

// IsFree is true for an unallocated cluster.
func (e fatEntry) IsFree() bool {
	return e.Value() == 0x0000000
}

func (e fatEntry) IsReservedTemp() bool {
	return e.Value() == 0x0000001
}

// IsNextCluster is true if the entry links to a following cluster.
func (e fatEntry) IsNextCluster() bool {
	return e.Value() >= 0x0000002 && e.Value() <= 0xFFFFFEF
}

func (e fatEntry) IsReserved() bool {
	return e.Value() >= 0xFFFFFF0 && e.Value() <= 0xFFFFFF6
}

// IsBad marks a defective cluster.
func (e fatEntry) IsBad() bool {
	return e.Value() == 0xFFFFFF7
}

// IsEOF marks the last cluster of a chain.
func (e fatEntry) IsEOF() bool {
	return e.Value() >= 0xFFFFFF8
}

// fatTable reads single entries of the FAT in use.
// Whole sectors are cached as most chains are contiguous.
type fatTable struct {
	reader   io.ReaderAt
	geometry Geometry
	sectors  *lru.Cache[int64, []byte]
}

func newFATTable(reader io.ReaderAt, geometry Geometry, cacheSize int) (*fatTable, error) {
	t := &fatTable{
		reader:   reader,
		geometry: geometry,
	}

	if cacheSize > 0 {
		cache, err := lru.New[int64, []byte](cacheSize)
		if err != nil {
			return nil, checkpoint.From(err)
		}
		t.sectors = cache
	}

	return t, nil
}

// fetch loads a single sector of the FAT.
func (t *fatTable) fetch(sector int64) ([]byte, error) {
	if t.sectors != nil {
		if buffer, ok := t.sectors.Get(sector); ok {
			return buffer, nil
		}
	}

	sectorSize := int64(t.geometry.BytesPerSector)
	buffer := make([]byte, sectorSize)
	if err := readFull(t.reader, buffer, sector*sectorSize); err != nil {
		return nil, err
	}

	if t.sectors != nil {
		t.sectors.Add(sector, buffer)
	}
	return buffer, nil
}

func (t *fatTable) entry(c ClusterID) (fatEntry, error) {
	offset := t.geometry.FATEntryOffset(c)
	sectorSize := int64(t.geometry.BytesPerSector)

	buffer, err := t.fetch(offset / sectorSize)
	if err != nil {
		return 0, err
	}

	return fatEntry(binary.LittleEndian.Uint32(buffer[offset%sectorSize:])), nil
}

// ChainIter walks a cluster chain. It is used like a bufio.Scanner:
//  it := fs.Chain(start)
//  for it.Next() {
//  	use(it.Cluster())
//  }
//  if err := it.Err(); err != nil {
//  	...
//  }
// The walk ends after at most TotalClusters clusters, so a loop in the FAT
// results in ErrCorruptChain instead of an endless walk.
type ChainIter struct {
	fat   *fatTable
	start ClusterID

	current ClusterID
	hops    uint32
	done    bool
	err     error
}

// Chain returns a new iterator over the clusters starting at start.
// Iterators do not share state, so a chain can be walked again from any saved cluster.
func (fs *Fs) Chain(start ClusterID) *ChainIter {
	return fs.fat.chain(start)
}

func (t *fatTable) chain(start ClusterID) *ChainIter {
	return &ChainIter{
		fat:   t,
		start: start,
	}
}

// Next advances to the next cluster. It returns false at the end of the chain or on error.
func (it *ChainIter) Next() bool {
	if it.done {
		return false
	}

	geometry := it.fat.geometry

	if it.hops == 0 {
		if !geometry.Valid(it.start) {
			return it.fail(fmt.Errorf("chain starts at invalid cluster %d", it.start))
		}
		it.current = it.start
		it.hops = 1
		return true
	}

	entry, err := it.fat.entry(it.current)
	if err != nil {
		it.err = checkpoint.From(err)
		it.done = true
		return false
	}

	if entry.IsEOF() {
		it.done = true
		return false
	}

	next := ClusterID(entry.Value())
	if !geometry.Valid(next) {
		return it.fail(fmt.Errorf("cluster %d links to invalid cluster %#x", it.current, uint32(entry)))
	}

	if it.hops >= geometry.TotalClusters {
		return it.fail(fmt.Errorf("chain starting at cluster %d is longer than the %d clusters of the volume", it.start, geometry.TotalClusters))
	}

	it.current = next
	it.hops++
	return true
}

func (it *ChainIter) fail(err error) bool {
	it.err = checkpoint.Wrap(err, ErrCorruptChain)
	it.done = true
	return false
}

// Cluster returns the cluster reached by the last successful call to Next.
func (it *ChainIter) Cluster() ClusterID {
	return it.current
}

// Err returns the error which stopped the walk, nil if the chain ended regularly.
func (it *ChainIter) Err() error {
	return it.err
}

// Clusters walks the whole chain. On error, the clusters visited so far are returned as well.
func (it *ChainIter) Clusters() ([]ClusterID, error) {
	var clusters []ClusterID
	for it.Next() {
		clusters = append(clusters, it.Cluster())
	}
	return clusters, it.Err()
}

// readFull reads len(p) bytes at off. Reaching the end of the image early is an error.
func readFull(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return checkpoint.Wrap(err, fmt.Errorf("read %d bytes at offset %d: got %d", len(p), off, n))
}
