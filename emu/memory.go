package emu

const (
	pageBits = 12
	pageSize = 1 << pageBits
	pageMask = pageSize - 1
)

// Memory is a sparse, little-endian byte-addressable memory. Pages are
// allocated on first write; unwritten bytes read as zero.
type Memory struct {
	pages map[uint64]*[pageSize]byte
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint64]*[pageSize]byte)}
}

// Read8 reads one byte.
func (m *Memory) Read8(addr uint64) byte {
	page, ok := m.pages[addr>>pageBits]
	if !ok {
		return 0
	}
	return page[addr&pageMask]
}

// Write8 writes one byte.
func (m *Memory) Write8(addr uint64, value byte) {
	key := addr >> pageBits
	page, ok := m.pages[key]
	if !ok {
		page = new([pageSize]byte)
		m.pages[key] = page
	}
	page[addr&pageMask] = value
}

// Read reads size bytes (1, 2, 4 or 8) as a little-endian value.
func (m *Memory) Read(addr uint64, size int) uint64 {
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(m.Read8(addr+uint64(i)))
	}
	return v
}

// Write writes the low size bytes of value in little-endian order.
func (m *Memory) Write(addr uint64, size int, value uint64) {
	for i := 0; i < size; i++ {
		m.Write8(addr+uint64(i), byte(value>>(8*i)))
	}
}

// Read16 reads a little-endian halfword.
func (m *Memory) Read16(addr uint64) uint16 { return uint16(m.Read(addr, 2)) }

// Read32 reads a little-endian word.
func (m *Memory) Read32(addr uint64) uint32 { return uint32(m.Read(addr, 4)) }

// Read64 reads a little-endian doubleword.
func (m *Memory) Read64(addr uint64) uint64 { return m.Read(addr, 8) }

// Write16 writes a little-endian halfword.
func (m *Memory) Write16(addr uint64, value uint16) { m.Write(addr, 2, uint64(value)) }

// Write32 writes a little-endian word.
func (m *Memory) Write32(addr uint64, value uint32) { m.Write(addr, 4, uint64(value)) }

// Write64 writes a little-endian doubleword.
func (m *Memory) Write64(addr uint64, value uint64) { m.Write(addr, 8, value) }

// LoadProgram copies program into memory starting at addr.
func (m *Memory) LoadProgram(addr uint64, program []byte) {
	for i, b := range program {
		m.Write8(addr+uint64(i), b)
	}
}

// ReadBytes copies n bytes starting at addr.
func (m *Memory) ReadBytes(addr, n uint64) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = m.Read8(addr + uint64(i))
	}
	return buf
}

// Clone returns a deep copy of the memory.
func (m *Memory) Clone() *Memory {
	c := NewMemory()
	for key, page := range m.pages {
		p := *page
		c.pages[key] = &p
	}
	return c
}
