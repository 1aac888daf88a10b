package loader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvooo/emu"
	"github.com/sarchlab/rvooo/loader"
)

const (
	machineRISCV = 243
	machineX86   = 62
)

type testSegment struct {
	addr    uint64
	flags   uint32
	data    []byte
	memSize uint64
}

// writeELF writes a little-endian ELF64 executable with one program header
// per segment and no section headers.
func writeELF(path string, machine uint16, entry uint64, segs ...testSegment) {
	const ehsize, phentsize = 64, 56

	header := make([]byte, ehsize)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 2                                   // ELFCLASS64
	header[5] = 1                                   // little endian
	header[6] = 1                                   // version
	binary.LittleEndian.PutUint16(header[16:18], 2) // ET_EXEC
	binary.LittleEndian.PutUint16(header[18:20], machine)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint64(header[24:32], entry)
	binary.LittleEndian.PutUint64(header[32:40], ehsize)
	binary.LittleEndian.PutUint16(header[52:54], ehsize)
	binary.LittleEndian.PutUint16(header[54:56], phentsize)
	binary.LittleEndian.PutUint16(header[56:58], uint16(len(segs)))

	out := header
	offset := uint64(ehsize + phentsize*len(segs))
	for _, s := range segs {
		memSize := s.memSize
		if memSize == 0 {
			memSize = uint64(len(s.data))
		}

		ph := make([]byte, phentsize)
		binary.LittleEndian.PutUint32(ph[0:4], 1) // PT_LOAD
		binary.LittleEndian.PutUint32(ph[4:8], s.flags)
		binary.LittleEndian.PutUint64(ph[8:16], offset)
		binary.LittleEndian.PutUint64(ph[16:24], s.addr)
		binary.LittleEndian.PutUint64(ph[24:32], s.addr)
		binary.LittleEndian.PutUint64(ph[32:40], uint64(len(s.data)))
		binary.LittleEndian.PutUint64(ph[40:48], memSize)
		binary.LittleEndian.PutUint64(ph[48:56], 0x1000)
		out = append(out, ph...)
		offset += uint64(len(s.data))
	}
	for _, s := range segs {
		out = append(out, s.data...)
	}

	Expect(os.WriteFile(path, out, 0644)).To(Succeed())
}

var _ = Describe("ELF Loader", func() {
	var tempDir string

	// addi a0, zero, 42; ecall
	code := []byte{0x13, 0x05, 0xa0, 0x02, 0x73, 0x00, 0x00, 0x00}

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "elf-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	Context("with a valid RV64 ELF binary", func() {
		var elfPath string

		BeforeEach(func() {
			elfPath = filepath.Join(tempDir, "test.elf")
			writeELF(elfPath, machineRISCV, 0x10078,
				testSegment{addr: 0x10000, flags: 0x5, data: code})
		})

		It("should extract the entry point and stack", func() {
			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.EntryPoint).To(Equal(uint64(0x10078)))
			Expect(prog.InitialSP).To(Equal(uint64(loader.DefaultStackTop)))
		})

		It("should load segment contents and permissions", func() {
			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Segments).To(HaveLen(1))

			seg := prog.Segments[0]
			Expect(seg.VirtAddr).To(Equal(uint64(0x10000)))
			Expect(seg.Data).To(Equal(code))
			Expect(seg.Flags & loader.SegmentFlagExecute).NotTo(BeZero())
			Expect(seg.Flags & loader.SegmentFlagWrite).To(BeZero())
		})
	})

	It("should load code and data segments", func() {
		elfPath := filepath.Join(tempDir, "multi.elf")
		data := []byte{1, 2, 3, 4}
		writeELF(elfPath, machineRISCV, 0x10000,
			testSegment{addr: 0x10000, flags: 0x5, data: code},
			testSegment{addr: 0x20000, flags: 0x6, data: data})

		prog, err := loader.Load(elfPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Segments).To(HaveLen(2))
		Expect(prog.Segments[1].Data).To(Equal(data))
		Expect(prog.Segments[1].Flags & loader.SegmentFlagWrite).NotTo(BeZero())
	})

	It("should zero-fill bss when loading into memory", func() {
		elfPath := filepath.Join(tempDir, "bss.elf")
		writeELF(elfPath, machineRISCV, 0x10000,
			testSegment{addr: 0x10000, flags: 0x5, data: code},
			testSegment{addr: 0x20000, flags: 0x6, data: []byte{7}, memSize: 64})

		prog, err := loader.Load(elfPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Segments[1].MemSize).To(Equal(uint64(64)))

		memory := emu.NewMemory()
		memory.Write8(0x20010, 0xAA)
		prog.LoadInto(memory)

		Expect(memory.Read32(0x10000)).To(Equal(uint32(0x02a00513)))
		Expect(memory.Read8(0x20000)).To(Equal(byte(7)))
		Expect(memory.Read8(0x20010)).To(BeZero())
	})

	It("should accept an ELF with no loadable segments", func() {
		elfPath := filepath.Join(tempDir, "empty.elf")
		writeELF(elfPath, machineRISCV, 0x10000)

		prog, err := loader.Load(elfPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Segments).To(BeEmpty())
	})

	Context("with an invalid file", func() {
		It("should return error for non-existent file", func() {
			_, err := loader.Load("/nonexistent/path/to/file.elf")
			Expect(err).To(MatchError(ContainSubstring("failed to open")))
		})

		It("should return error for non-ELF file", func() {
			path := filepath.Join(tempDir, "not-elf.bin")
			Expect(os.WriteFile(path, []byte("not an elf file"), 0644)).To(Succeed())

			_, err := loader.Load(path)
			Expect(err).To(MatchError(ContainSubstring("ELF")))
		})

		It("should reject other machines", func() {
			path := filepath.Join(tempDir, "x86.elf")
			writeELF(path, machineX86, 0)

			_, err := loader.Load(path)
			Expect(err).To(MatchError(ContainSubstring("not a RISC-V")))
		})

		It("should reject 32-bit ELF files", func() {
			path := filepath.Join(tempDir, "elf32.elf")
			header := make([]byte, 52)
			copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
			header[4] = 1 // ELFCLASS32
			header[5] = 1
			header[6] = 1
			binary.LittleEndian.PutUint16(header[16:18], 2)
			binary.LittleEndian.PutUint16(header[18:20], machineRISCV)
			binary.LittleEndian.PutUint32(header[20:24], 1)
			Expect(os.WriteFile(path, header, 0644)).To(Succeed())

			_, err := loader.Load(path)
			Expect(err).To(MatchError(ContainSubstring("not a 64-bit")))
		})
	})
})
