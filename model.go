// File model contains the structs which match the direct structures of the FAT32 filesystem.
// They are decoded with encoding/binary in little endian.

package rofat

// Directory entry attributes.
const (
	AttrReadOnly  byte = 0x01
	AttrHidden    byte = 0x02
	AttrSystem    byte = 0x04
	AttrVolumeID  byte = 0x08
	AttrDirectory byte = 0x10
	AttrArchive   byte = 0x20

	// AttrLongName marks a long file name fragment when the attribute byte
	// masked with AttrLongNameMask equals it.
	AttrLongName     = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
	AttrLongNameMask = AttrLongName | AttrDirectory | AttrArchive

	// attrUnused are the two reserved high bits. Entries using them are skipped.
	attrUnused byte = 0xC0
)

const (
	// bootSectorSize is the part of sector 0 needed to load the geometry.
	bootSectorSize = 90

	dirEntrySize = 32

	// Marker values of the first name byte.
	entryFree    byte = 0x00
	entryDeleted byte = 0xE5
	entryKanji   byte = 0x05
	entryDot     byte = '.'

	// lfnLast is set in the sequence byte of the last (first stored) fragment.
	lfnLast         byte = 0x40
	lfnSequenceMask byte = 0x1F
	lfnUnits             = 13

	// NT reserved byte flags which mark an all lowercase base name or extension.
	ntLowerBase byte = 0x08
	ntLowerExt  byte = 0x10

	fsInfoLeadSignature   uint32 = 0x41615252
	fsInfoStructSignature uint32 = 0x61417272
	fsInfoTrailSignature  uint32 = 0xAA550000
	fsInfoUnknown         uint32 = 0xFFFFFFFF
)

type BPB struct {
	BSJumpBoot          [3]byte
	BSOEMName           [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   byte
	ReservedSectorCount uint16
	NumFATs             byte
	RootEntryCount      uint16
	TotalSectors16      uint16
	Media               byte
	FATSize16           uint16
	SectorsPerTrack     uint16
	NumberOfHeads       uint16
	HiddenSectors       uint32
	TotalSectors32      uint32
	FATSpecificData     [54]byte
}

type FAT32SpecificData struct {
	FatSize          uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      ClusterID
	FSInfo           uint16
	BkBootSector     uint16
	Reserved         [12]byte
	BSDriveNumber    byte
	BSReserved1      byte
	BSBootSignature  byte
	BSVolumeID       uint32
	BSVolumeLabel    [11]byte
	BSFileSystemType [8]byte
}

// FSInfo is the FAT32 file system information sector.
// The free count and next free hints are advisory only.
type FSInfo struct {
	LeadSignature   uint32
	Reserved1       [480]byte
	StructSignature uint32
	FreeCount       uint32
	NextFree        uint32
	Reserved2       [12]byte
	TrailSignature  uint32
}

// EntryHeader is a short (8.3) directory entry.
type EntryHeader struct {
	Name            [11]byte
	Attribute       byte
	NTReserved      byte
	CreateTimeTenth byte
	CreateTime      uint16
	CreateDate      uint16
	LastAccessDate  uint16
	FirstClusterHI  uint16
	WriteTime       uint16
	WriteDate       uint16
	FirstClusterLO  uint16
	FileSize        uint32
}

// FirstCluster joins the split cluster halves.
func (h EntryHeader) FirstCluster() ClusterID {
	return ClusterID(uint32(h.FirstClusterHI)<<16 | uint32(h.FirstClusterLO))
}

func (h EntryHeader) IsDir() bool {
	return h.Attribute&AttrDirectory == AttrDirectory
}

// LongFilenameEntry is a fragment of a long file name stored directly before its short entry.
type LongFilenameEntry struct {
	Sequence  byte
	First     [5]uint16
	Attribute byte
	EntryType byte
	Checksum  byte
	Second    [6]uint16
	Zero      [2]byte
	Third     [2]uint16
}

// Order is the position of the fragment inside the name, starting at 1.
func (l LongFilenameEntry) Order() int {
	return int(l.Sequence & lfnSequenceMask)
}

// units returns the UTF-16 code units of the fragment up to the first NUL terminator.
func (l LongFilenameEntry) units() []uint16 {
	all := make([]uint16, 0, lfnUnits)
	all = append(all, l.First[:]...)
	all = append(all, l.Second[:]...)
	all = append(all, l.Third[:]...)

	for i, u := range all {
		if u == 0x0000 {
			return all[:i]
		}
	}
	return all
}
