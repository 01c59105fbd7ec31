package rofat

import (
	"errors"
	"io"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/spf13/afero"
)

// fileTestFields mirrors the File struct to fill the unit under test.
type fileTestFields struct {
	path         string
	isDirectory  bool
	firstCluster ClusterID
	stat         os.FileInfo
	offset       int64
}

func (f fileTestFields) file(fs fatFileFs) *File {
	return &File{
		fs:           fs,
		path:         f.path,
		isDirectory:  f.isDirectory,
		firstCluster: f.firstCluster,
		stat:         f.stat,
		offset:       f.offset,
	}
}

// fakeFileInfo only carries a size.
type fakeFileInfo struct {
	fileSize int64
}

func (f fakeFileInfo) Name() string       { return "" }
func (f fakeFileInfo) Size() int64        { return f.fileSize }
func (f fakeFileInfo) Mode() os.FileMode  { return 0 }
func (f fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (f fakeFileInfo) IsDir() bool        { return false }
func (f fakeFileInfo) Sys() interface{}   { return nil }

var errFileTest = errors.New("a super error")

func TestFile_Close(t *testing.T) {
	f := fileTestFields{
		path:         "any path",
		isDirectory:  true,
		firstCluster: 5,
		stat:         fakeFileInfo{fileSize: 3},
		offset:       7,
	}.file(&Fs{})

	if err := f.Close(); err != nil {
		t.Errorf("File.Close() error = %v", err)
	}
	if *f != (File{}) {
		t.Errorf("File.Close() did not reset all fields: File = %v", *f)
	}
}

func TestFile_Read(t *testing.T) {
	type mock struct {
		result []byte
		err    error
	}
	tests := []struct {
		name       string
		mockData   mock
		fields     fileTestFields
		p          []byte
		wantN      int
		wantOffset int64
		wantErr    error
	}{
		{
			name:       "simple file",
			mockData:   mock{result: []byte("Hello World")},
			fields:     fileTestFields{firstCluster: 3, stat: fakeFileInfo{fileSize: 11}},
			p:          make([]byte, 11),
			wantN:      11,
			wantOffset: 11,
		},
		{
			name:       "simple file with offset",
			mockData:   mock{result: []byte(" World")},
			fields:     fileTestFields{firstCluster: 3, offset: 5, stat: fakeFileInfo{fileSize: 11}},
			p:          make([]byte, 6),
			wantN:      6,
			wantOffset: 11,
		},
		{
			name:       "error after some bytes",
			mockData:   mock{result: []byte("H"), err: errFileTest},
			fields:     fileTestFields{firstCluster: 3, stat: fakeFileInfo{fileSize: 11}},
			p:          make([]byte, 11),
			wantN:      1,
			wantOffset: 1,
			wantErr:    errFileTest,
		},
		{
			name:       "file smaller than buffer",
			mockData:   mock{result: []byte("Hello World"), err: io.EOF},
			fields:     fileTestFields{firstCluster: 3, stat: fakeFileInfo{fileSize: 11}},
			p:          make([]byte, 20),
			wantN:      11,
			wantOffset: 11,
			wantErr:    io.EOF,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockCtrl := gomock.NewController(t)
			mockFs := NewMockfatFileFs(mockCtrl)
			mockFs.EXPECT().
				readFileAt(tt.fields.firstCluster, tt.fields.stat.Size(), tt.fields.offset, int64(len(tt.p))).
				Times(1).
				Return(tt.mockData.result, tt.mockData.err)

			f := tt.fields.file(mockFs)
			gotN, err := f.Read(tt.p)

			mockCtrl.Finish()

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("File.Read() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if gotN != tt.wantN {
				t.Errorf("File.Read() = %v, want %v", gotN, tt.wantN)
			}
			if f.offset != tt.wantOffset {
				t.Errorf("File.offset = %v, want %v", f.offset, tt.wantOffset)
			}
		})
	}
}

func TestFile_Read_noCall(t *testing.T) {
	tests := []struct {
		name    string
		fields  fileTestFields
		p       []byte
		wantErr error
	}{
		{
			name:    "at the end",
			fields:  fileTestFields{offset: 11, stat: fakeFileInfo{fileSize: 11}},
			p:       make([]byte, 1),
			wantErr: io.EOF,
		},
		{
			name:    "directory",
			fields:  fileTestFields{isDirectory: true, stat: fakeFileInfo{}},
			p:       make([]byte, 1),
			wantErr: syscall.EISDIR,
		},
		{
			name:   "empty buffer",
			fields: fileTestFields{stat: fakeFileInfo{fileSize: 11}},
			p:      nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockCtrl := gomock.NewController(t)
			f := tt.fields.file(NewMockfatFileFs(mockCtrl))

			n, err := f.Read(tt.p)
			mockCtrl.Finish()

			if n != 0 || !errors.Is(err, tt.wantErr) {
				t.Errorf("File.Read() = %v, %v, want 0, %v", n, err, tt.wantErr)
			}
		})
	}
}

func TestFile_ReadAt(t *testing.T) {
	type mock struct {
		result []byte
		err    error
	}
	tests := []struct {
		name     string
		fields   fileTestFields
		p        []byte
		off      int64
		mockData mock
		wantN    int
		wantErr  error
	}{
		{
			name:     "simple file",
			mockData: mock{result: []byte("ello World")},
			fields:   fileTestFields{stat: fakeFileInfo{fileSize: 11}},
			p:        make([]byte, 10),
			off:      1,
			wantN:    10,
		},
		{
			name:     "error while reading",
			mockData: mock{err: errFileTest},
			fields:   fileTestFields{stat: fakeFileInfo{fileSize: 11}},
			p:        make([]byte, 11),
			off:      1,
			wantErr:  errFileTest,
		},
		{
			name:     "not enough data",
			mockData: mock{result: []byte("ello"), err: io.EOF},
			fields:   fileTestFields{stat: fakeFileInfo{fileSize: 11}},
			p:        make([]byte, 10),
			off:      1,
			wantN:    4,
			wantErr:  io.EOF,
		},
		{
			name:     "short read without error",
			mockData: mock{result: []byte("ello")},
			fields:   fileTestFields{stat: fakeFileInfo{fileSize: 11}},
			p:        make([]byte, 10),
			off:      1,
			wantN:    4,
			wantErr:  io.ErrUnexpectedEOF,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockCtrl := gomock.NewController(t)
			mockFs := NewMockfatFileFs(mockCtrl)
			mockFs.EXPECT().
				readFileAt(tt.fields.firstCluster, tt.fields.stat.Size(), tt.off, int64(len(tt.p))).
				Times(1).
				Return(tt.mockData.result, tt.mockData.err)

			f := tt.fields.file(mockFs)
			gotN, err := f.ReadAt(tt.p, tt.off)

			mockCtrl.Finish()

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("File.ReadAt() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if gotN != tt.wantN {
				t.Errorf("File.ReadAt() = %v, want %v", gotN, tt.wantN)
			}
			if f.offset != 0 {
				t.Errorf("File.ReadAt() changed the offset to %v", f.offset)
			}
		})
	}
}

func TestFile_Seek(t *testing.T) {
	tests := []struct {
		name    string
		offset  int64
		whence  int
		start   int64
		want    int64
		wantErr error
	}{
		{
			name:   "from start regardless of previous offset",
			start:  1234,
			offset: 100,
			whence: io.SeekStart,
			want:   100,
		},
		{
			name:   "from last offset",
			start:  1000,
			offset: 200,
			whence: io.SeekCurrent,
			want:   1200,
		},
		{
			name:   "from the end",
			start:  1000,
			offset: -200,
			whence: io.SeekEnd,
			want:   4800,
		},
		{
			name:    "before the start",
			start:   1000,
			offset:  -1,
			whence:  io.SeekStart,
			want:    1000,
			wantErr: afero.ErrOutOfRange,
		},
		{
			name:    "behind the end",
			start:   1000,
			offset:  1,
			whence:  io.SeekEnd,
			want:    1000,
			wantErr: afero.ErrOutOfRange,
		},
		{
			name:    "invalid whence",
			start:   1000,
			offset:  1,
			whence:  42,
			want:    1000,
			wantErr: syscall.EINVAL,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fileTestFields{offset: tt.start, stat: fakeFileInfo{fileSize: 5000}}.file(nil)

			got, err := f.Seek(tt.offset, tt.whence)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("File.Seek() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && got != tt.want {
				t.Errorf("File.Seek() = %v, want %v", got, tt.want)
			}

			// f.offset must be set also, or stay unchanged on error.
			if f.offset != tt.want {
				t.Errorf("File.offset = %v, want %v", f.offset, tt.want)
			}
		})
	}
}

func TestFile_readOnly(t *testing.T) {
	f := fileTestFields{stat: fakeFileInfo{fileSize: 11}}.file(nil)

	_, err := f.Write([]byte("x"))
	if !errors.Is(err, syscall.EROFS) {
		t.Errorf("File.Write() error = %v, want EROFS", err)
	}
	_, err = f.WriteAt([]byte("x"), 0)
	if !errors.Is(err, syscall.EROFS) {
		t.Errorf("File.WriteAt() error = %v, want EROFS", err)
	}
	_, err = f.WriteString("x")
	if !errors.Is(err, syscall.EROFS) {
		t.Errorf("File.WriteString() error = %v, want EROFS", err)
	}
	if err := f.Truncate(0); !errors.Is(err, syscall.EROFS) {
		t.Errorf("File.Truncate() error = %v, want EROFS", err)
	}
	if err := f.Sync(); err != nil {
		t.Errorf("File.Sync() error = %v", err)
	}
}

func TestFile_Readdir(t *testing.T) {
	content := []Entry{{Name: "1"}, {Name: "2"}, {Name: "3"}}

	tests := []struct {
		name       string
		start      int64
		count      int
		mockResult []Entry
		mockErr    error
		want       []string
		wantOffset int64
		wantErr    error
	}{
		{
			name:       "all entries",
			count:      -1,
			mockResult: content,
			want:       []string{"1", "2", "3"},
			wantOffset: 3,
		},
		{
			name:       "first two",
			count:      2,
			mockResult: content,
			want:       []string{"1", "2"},
			wantOffset: 2,
		},
		{
			name:       "the rest",
			start:      2,
			count:      2,
			mockResult: content,
			want:       []string{"3"},
			wantOffset: 3,
		},
		{
			name:       "nothing left with count",
			start:      3,
			count:      1,
			mockResult: content,
			wantOffset: 3,
			wantErr:    io.EOF,
		},
		{
			name:       "nothing left without count",
			start:      3,
			count:      0,
			mockResult: content,
			want:       []string{},
			wantOffset: 3,
		},
		{
			name:    "error",
			count:   -1,
			mockErr: errFileTest,
			wantErr: errFileTest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockCtrl := gomock.NewController(t)
			mockFs := NewMockfatFileFs(mockCtrl)
			mockFs.EXPECT().
				readDir(ClusterID(7)).
				Times(1).
				Return(tt.mockResult, tt.mockErr)

			f := fileTestFields{isDirectory: true, firstCluster: 7, offset: tt.start}.file(mockFs)
			got, err := f.Readdirnames(tt.count)

			mockCtrl.Finish()

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("File.Readdir() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && len(got) != len(tt.want) {
				t.Errorf("File.Readdir() = %v, want %v", got, tt.want)
				return
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("File.Readdir() = %v, want %v", got, tt.want)
				}
			}
			if f.offset != tt.wantOffset {
				t.Errorf("File.offset = %v, want %v", f.offset, tt.wantOffset)
			}
		})
	}
}

func TestFile_Readdir_notDirectory(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	f := fileTestFields{stat: fakeFileInfo{fileSize: 1}}.file(NewMockfatFileFs(mockCtrl))

	_, err := f.Readdir(-1)
	mockCtrl.Finish()

	if !errors.Is(err, syscall.ENOTDIR) {
		t.Errorf("File.Readdir() error = %v, want ENOTDIR", err)
	}
}
