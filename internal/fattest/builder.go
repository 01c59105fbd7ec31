package fattest

import (
	"encoding/binary"
	"fmt"
	"path"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// Attributes used by the builder.
const (
	AttrReadOnly  byte = 0x01
	AttrHidden    byte = 0x02
	AttrVolumeID  byte = 0x08
	AttrDirectory byte = 0x10
	AttrArchive   byte = 0x20
	AttrLongName  byte = 0x0F

	EndOfChain uint32 = 0x0FFFFFFF
)

// Timestamp is written into all entries: 2021-03-04 05:06:08.
var Timestamp = time.Date(2021, 3, 4, 5, 6, 8, 0, time.UTC)

// Builder describes a FAT32 volume. The exported fields can be changed
// before calling Build or BootSector, also to values which make the volume invalid.
type Builder struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	Clusters          uint32
	RootEntryCount    uint16
	Label             string
	FreeCount         uint32

	// Stride is the distance between two allocated clusters, 1 allocates contiguously.
	Stride uint32

	root *node
}

type node struct {
	name     string
	attr     byte
	data     []byte
	children []*node

	short    [11]byte
	long     bool
	clusters []uint32

	// Offsets of the directory records in the parent.
	shortOffset int64
	lfnOffsets  []int64
}

func (n *node) isDir() bool {
	return n.attr&AttrDirectory != 0
}

// New returns a builder with a minimal valid geometry: 512 byte sectors,
// one sector per cluster and 65600 data clusters.
func New() *Builder {
	return &Builder{
		BytesPerSector:    512,
		SectorsPerCluster: 1,
		ReservedSectors:   32,
		NumFATs:           2,
		Clusters:          65600,
		Label:             "TESTVOL",
		FreeCount:         0xFFFFFFFF,
		Stride:            1,
		root:              &node{name: "/", attr: AttrDirectory},
	}
}

// Dir adds a directory and all missing parents.
func (b *Builder) Dir(p string) *Builder {
	b.mkdir(p)
	return b
}

// File adds a file with the archive attribute.
func (b *Builder) File(p string, data []byte) *Builder {
	return b.FileAttr(p, data, AttrArchive)
}

// FileAttr adds a file with the given attributes.
func (b *Builder) FileAttr(p string, data []byte, attr byte) *Builder {
	dir, name := path.Split(strings.Trim(p, "/"))
	parent := b.mkdir(dir)
	parent.children = append(parent.children, &node{name: name, attr: attr, data: data})
	return b
}

func (b *Builder) mkdir(p string) *node {
	current := b.root
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if part == "" {
			continue
		}

		var next *node
		for _, child := range current.children {
			if child.name == part {
				next = child
				break
			}
		}
		if next == nil {
			next = &node{name: part, attr: AttrDirectory}
			current.children = append(current.children, next)
		}
		current = next
	}
	return current
}

// Layout is the geometry derived from the builder fields.
type Layout struct {
	SectorSize    int64
	ClusterSize   int64
	FATSectors    uint32
	TotalSectors  uint32
	FATOffset     int64
	DataOffset    int64
	NumFATs       uint8
	RootCluster   uint32
	TotalClusters uint32
}

func (b *Builder) layout() Layout {
	sectorSize := int64(b.BytesPerSector)
	fatSectors := uint32((int64(b.Clusters+2)*4 + sectorSize - 1) / sectorSize)
	meta := uint32(b.ReservedSectors) + uint32(b.NumFATs)*fatSectors

	return Layout{
		SectorSize:    sectorSize,
		ClusterSize:   sectorSize * int64(b.SectorsPerCluster),
		FATSectors:    fatSectors,
		TotalSectors:  meta + b.Clusters*uint32(b.SectorsPerCluster),
		FATOffset:     int64(b.ReservedSectors) * sectorSize,
		DataOffset:    int64(meta) * sectorSize,
		NumFATs:       b.NumFATs,
		RootCluster:   2,
		TotalClusters: b.Clusters,
	}
}

// BootSector returns sector 0 of the volume.
func (b *Builder) BootSector() []byte {
	l := b.layout()
	s := make([]byte, 512)

	copy(s[0:], []byte{0xEB, 0x58, 0x90})
	copy(s[3:], "MSWIN4.1")
	binary.LittleEndian.PutUint16(s[11:], b.BytesPerSector)
	s[13] = b.SectorsPerCluster
	binary.LittleEndian.PutUint16(s[14:], b.ReservedSectors)
	s[16] = b.NumFATs
	binary.LittleEndian.PutUint16(s[17:], b.RootEntryCount)
	s[21] = 0xF8
	binary.LittleEndian.PutUint16(s[24:], 32)
	binary.LittleEndian.PutUint16(s[26:], 64)
	binary.LittleEndian.PutUint32(s[32:], l.TotalSectors)
	binary.LittleEndian.PutUint32(s[36:], l.FATSectors)
	binary.LittleEndian.PutUint32(s[44:], l.RootCluster)
	binary.LittleEndian.PutUint16(s[48:], 1)
	binary.LittleEndian.PutUint16(s[50:], 6)
	s[64] = 0x80
	s[66] = 0x29
	binary.LittleEndian.PutUint32(s[67:], 0x1234ABCD)
	copy(s[71:82], pad("NO NAME", 11))
	copy(s[82:90], "FAT32   ")
	s[510] = 0x55
	s[511] = 0xAA

	return s
}

func (b *Builder) fsInfo() []byte {
	s := make([]byte, 512)
	binary.LittleEndian.PutUint32(s[0:], 0x41615252)
	binary.LittleEndian.PutUint32(s[484:], 0x61417272)
	binary.LittleEndian.PutUint32(s[488:], b.FreeCount)
	binary.LittleEndian.PutUint32(s[492:], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(s[508:], 0xAA550000)
	return s
}

// Volume is a built image together with the information where things are stored.
type Volume struct {
	*Image
	Layout

	nodes map[string]*node
	next  uint32
}

// Build lays out all directories and files and writes them into a new image.
func (b *Builder) Build() *Volume {
	l := b.layout()
	v := &Volume{
		Image:  NewImage(int64(l.TotalSectors) * l.SectorSize),
		Layout: l,
		nodes:  make(map[string]*node),
		next:   l.RootCluster,
	}

	v.WriteAt(b.BootSector(), 0)
	v.WriteAt(b.fsInfo(), l.SectorSize)

	v.SetFAT(0, 0x0FFFFFF8)
	v.SetFAT(1, EndOfChain)

	b.assignShortNames(b.root)
	v.allocate(b.root, "/", b.Stride)
	v.writeDir(b.root, nil, b.Label)

	return v
}

func (b *Builder) assignShortNames(dir *node) {
	used := make(map[[11]byte]bool)
	for _, child := range dir.children {
		child.short, child.long = shortNameFor(child.name, used)
		used[child.short] = true
		if child.isDir() {
			b.assignShortNames(child)
		}
	}
}

func (v *Volume) allocate(n *node, p string, stride uint32) {
	v.nodes[p] = n

	var size int64
	if n.isDir() {
		size = int64(dirRecords(n, p == "/")) * 32
		if size == 0 {
			size = 32
		}
	} else {
		size = int64(len(n.data))
	}

	count := (size + v.ClusterSize - 1) / v.ClusterSize
	for i := int64(0); i < count; i++ {
		n.clusters = append(n.clusters, v.next)
		v.next += stride
	}
	for i, c := range n.clusters {
		if i+1 < len(n.clusters) {
			v.SetFAT(c, n.clusters[i+1])
		} else {
			v.SetFAT(c, EndOfChain)
		}
	}

	for _, child := range n.children {
		v.allocate(child, path.Join(p, child.name), stride)
	}
}

func dirRecords(n *node, root bool) int {
	records := 2 // "." and ".."
	if root {
		records = 1 // volume label
	}
	for _, child := range n.children {
		records++
		if child.long {
			records += len(LongNameRecords(child.name, child.short))
		}
	}
	return records
}

func (v *Volume) writeDir(n *node, parent *node, label string) {
	var records [][]byte
	if parent == nil {
		records = append(records, ShortRecord(LabelName(label), AttrVolumeID, 0, 0))
	} else {
		records = append(records,
			ShortRecord(ShortName("."), AttrDirectory, n.firstCluster(), 0),
			ShortRecord(ShortName(".."), AttrDirectory, parent.firstClusterOrRoot(), 0),
		)
	}

	for _, child := range n.children {
		if child.long {
			for _, record := range LongNameRecords(child.name, child.short) {
				child.lfnOffsets = append(child.lfnOffsets, v.recordOffset(n, len(records)))
				records = append(records, record)
			}
		}

		size := uint32(len(child.data))
		if child.isDir() {
			size = 0
		}
		child.shortOffset = v.recordOffset(n, len(records))
		records = append(records, ShortRecord(child.short, child.attr, child.firstCluster(), size))
	}

	for i, record := range records {
		v.WriteAt(record, v.recordOffset(n, i))
	}

	for _, child := range n.children {
		if child.isDir() {
			v.writeDir(child, n, "")
		} else {
			v.writeData(child)
		}
	}
}

func (v *Volume) writeData(n *node) {
	for i, c := range n.clusters {
		chunk := make([]byte, v.ClusterSize)
		copy(chunk, n.data[int64(i)*v.ClusterSize:])
		v.WriteCluster(c, chunk)
	}
}

func (v *Volume) recordOffset(dir *node, index int) int64 {
	perCluster := int(v.ClusterSize / 32)
	c := dir.clusters[index/perCluster]
	return v.ClusterOffset(c) + int64(index%perCluster)*32
}

func (n *node) firstCluster() uint32 {
	if len(n.clusters) == 0 {
		return 0
	}
	return n.clusters[0]
}

// firstClusterOrRoot returns 0 for the root directory as ".." entries do.
func (n *node) firstClusterOrRoot() uint32 {
	if n.name == "/" {
		return 0
	}
	return n.firstCluster()
}

// Cluster returns the first cluster of the file or directory at p.
func (v *Volume) Cluster(p string) uint32 {
	return v.node(p).firstCluster()
}

// Clusters returns the whole chain of the file or directory at p.
func (v *Volume) Clusters(p string) []uint32 {
	return append([]uint32(nil), v.node(p).clusters...)
}

// ShortEntryOffset returns the image offset of the short directory entry of p.
func (v *Volume) ShortEntryOffset(p string) int64 {
	return v.node(p).shortOffset
}

// LongEntryOffsets returns the image offsets of the long name records of p in on-disk order.
func (v *Volume) LongEntryOffsets(p string) []int64 {
	return append([]int64(nil), v.node(p).lfnOffsets...)
}

func (v *Volume) node(p string) *node {
	n, ok := v.nodes[path.Join("/", p)]
	if !ok {
		panic(fmt.Sprintf("fattest: no such node %q", p))
	}
	return n
}

// SetFAT writes value into the entry of cluster in all FAT copies.
func (v *Volume) SetFAT(cluster, value uint32) {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, value)
	for i := int64(0); i < int64(v.NumFATs); i++ {
		v.WriteAt(raw, v.FATOffset+i*int64(v.FATSectors)*v.SectorSize+int64(cluster)*4)
	}
}

func (v *Volume) ClusterOffset(cluster uint32) int64 {
	return v.DataOffset + int64(cluster-2)*v.ClusterSize
}

func (v *Volume) WriteCluster(cluster uint32, data []byte) {
	v.WriteAt(data, v.ClusterOffset(cluster))
}

// ShortRecord encodes a short directory entry using Timestamp for all times.
func ShortRecord(name [11]byte, attr byte, cluster uint32, size uint32) []byte {
	r := make([]byte, 32)
	copy(r, name[:])
	r[11] = attr

	date := uint16(Timestamp.Year()-1980)<<9 | uint16(Timestamp.Month())<<5 | uint16(Timestamp.Day())
	clock := uint16(Timestamp.Hour())<<11 | uint16(Timestamp.Minute())<<5 | uint16(Timestamp.Second()/2)

	binary.LittleEndian.PutUint16(r[14:], clock)
	binary.LittleEndian.PutUint16(r[16:], date)
	binary.LittleEndian.PutUint16(r[18:], date)
	binary.LittleEndian.PutUint16(r[20:], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(r[22:], clock)
	binary.LittleEndian.PutUint16(r[24:], date)
	binary.LittleEndian.PutUint16(r[26:], uint16(cluster))
	binary.LittleEndian.PutUint32(r[28:], size)
	return r
}

// LongNameRecords encodes name as long name fragments for the short name in
// on-disk order, which is the last fragment first.
func LongNameRecords(name string, short [11]byte) [][]byte {
	units := encodeUTF16(name)
	if len(units)%13 != 0 {
		units = append(units, 0x0000)
		for len(units)%13 != 0 {
			units = append(units, 0xFFFF)
		}
	}

	count := len(units) / 13
	sum := Checksum(short)
	records := make([][]byte, 0, count)
	for seq := count; seq >= 1; seq-- {
		records = append(records, LongNameRecord(byte(seq), seq == count, units[(seq-1)*13:seq*13], sum))
	}
	return records
}

// LongNameRecord encodes a single fragment. units is padded with a terminator
// and 0xFFFF if it is shorter than 13.
func LongNameRecord(seq byte, last bool, units []uint16, checksum byte) []byte {
	padded := make([]uint16, 13)
	for i := range padded {
		switch {
		case i < len(units):
			padded[i] = units[i]
		case i == len(units):
			padded[i] = 0x0000
		default:
			padded[i] = 0xFFFF
		}
	}

	r := make([]byte, 32)
	r[0] = seq
	if last {
		r[0] |= 0x40
	}
	for i := 0; i < 5; i++ {
		binary.LittleEndian.PutUint16(r[1+i*2:], padded[i])
	}
	r[11] = AttrLongName
	r[13] = checksum
	for i := 0; i < 6; i++ {
		binary.LittleEndian.PutUint16(r[14+i*2:], padded[5+i])
	}
	for i := 0; i < 2; i++ {
		binary.LittleEndian.PutUint16(r[28+i*2:], padded[11+i])
	}
	return r
}

// UTF16 converts s into UTF-16 code units.
func UTF16(s string) []uint16 {
	return encodeUTF16(s)
}

func encodeUTF16(s string) []uint16 {
	raw, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		panic(err)
	}
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return units
}

// Checksum is the long name checksum of a short name.
func Checksum(short [11]byte) byte {
	var sum byte
	for _, c := range short {
		sum = (sum&1)<<7 + sum>>1 + c
	}
	return sum
}

// ShortName space pads a "NAME.EXT" name into the 11 byte on-disk form.
// "." and ".." are kept as they are.
func ShortName(name string) [11]byte {
	var short [11]byte
	if name == "." || name == ".." {
		copy(short[:], pad(name, 11))
		return short
	}

	base, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 {
		base, ext = name[:i], name[i+1:]
	}
	copy(short[0:8], pad(base, 8))
	copy(short[8:11], pad(ext, 3))
	return short
}

// LabelName space pads a volume label to 11 bytes.
func LabelName(label string) [11]byte {
	var name [11]byte
	copy(name[:], pad(label, 11))
	return name
}

func pad(s string, n int) []byte {
	if len(s) > n {
		s = s[:n]
	}
	return []byte(s + strings.Repeat(" ", n-len(s)))
}

// shortNameFor returns the short name for name and whether a long name is needed.
func shortNameFor(name string, used map[[11]byte]bool) ([11]byte, bool) {
	if isShortName(name) {
		return ShortName(name), false
	}

	base, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 {
		base, ext = name[:i], name[i+1:]
	}
	base, ext = shortChars(base), shortChars(ext)
	if len(base) > 6 {
		base = base[:6]
	}
	if len(ext) > 3 {
		ext = ext[:3]
	}

	for i := 1; ; i++ {
		tail := fmt.Sprintf("~%d", i)
		b := base
		if len(b)+len(tail) > 8 {
			b = b[:8-len(tail)]
		}
		candidate := ShortName(b + tail + "." + ext)
		if ext == "" {
			candidate = ShortName(b + tail)
		}
		if !used[candidate] {
			return candidate, true
		}
	}
}

func isShortName(name string) bool {
	base, ext := name, ""
	if i := strings.Index(name, "."); i >= 0 {
		base, ext = name[:i], name[i+1:]
	}
	if len(base) == 0 || len(base) > 8 || len(ext) > 3 || strings.Contains(ext, ".") {
		return false
	}
	return shortChars(base) == base && shortChars(ext) == ext
}

// shortChars upper cases s and drops everything not allowed in a short name.
func shortChars(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || strings.ContainsRune("_-~!#$%&'()@^`{}", r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
