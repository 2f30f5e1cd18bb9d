package cog

// MmapFile memory-maps a file read-only, for use by format adapters
// outside this package (internal/loader/fits) that want zero-copy
// access to file contents.
func MmapFile(fd uintptr, size int) ([]byte, error) { return mmapFile(fd, size) }

// MunmapFile releases a mapping created by MmapFile.
func MunmapFile(data []byte) error { return munmapFile(data) }
