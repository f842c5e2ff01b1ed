package hexfmt

import (
	"bufio"
	"fmt"
	"io"
)

const maxRecordBytes = 16

// recordChecksum computes the standard Intel HEX checksum: the two's
// complement of the sum of every record byte except the checksum byte
// itself (spec.md §4.9).
func recordChecksum(byteCount int, address uint16, recordType byte, data []byte) byte {
	sum := byteCount + int(address>>8) + int(address&0xFF) + int(recordType)
	for _, b := range data {
		sum += int(b)
	}
	return byte(-sum) & 0xFF
}

func writeDataRecord(w *bufio.Writer, address uint16, data []byte) error {
	checksum := recordChecksum(len(data), address, 0x00, data)
	if _, err := fmt.Fprintf(w, ":%02X%04X%02X", len(data), address, 0x00); err != nil {
		return err
	}
	for _, b := range data {
		if _, err := fmt.Fprintf(w, "%02X", b); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%02X\n", checksum)
	return err
}

// writeExtendedAddressRecord emits a type-04 record whose 2-byte payload is
// the upper 16 bits of a 32-bit address, issued whenever that half changes
// (base 0x80000000 -> ":0200000480007A").
func writeExtendedAddressRecord(w *bufio.Writer, upperHalf uint16) error {
	data := []byte{byte(upperHalf >> 8), byte(upperHalf)}
	checksum := recordChecksum(len(data), 0x0000, 0x04, data)
	_, err := fmt.Fprintf(w, ":02000004%02X%02X%02X\n", data[0], data[1], checksum)
	return err
}

// WriteIntelHex emits the image as Intel HEX: a type-04 Extended Linear
// Address record whenever the high 16 bits of the address change, type-00
// data records of at most 16 bytes grouping consecutive addresses, and a
// closing ":00000001FF" end-of-file record (spec.md §4.9, §6.3).
func WriteIntelHex(w io.Writer, img Image) error {
	bw := bufio.NewWriter(w)
	addrs := sortedAddresses(img)

	if len(addrs) == 0 {
		if _, err := bw.WriteString(":00000001FF\n"); err != nil {
			return err
		}
		return bw.Flush()
	}

	var currentUpper uint16
	haveUpper := false
	var runStart uint32
	var run []byte

	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		err := writeDataRecord(bw, uint16(runStart), run)
		run = nil
		return err
	}

	for _, addr := range addrs {
		upper := uint16(addr >> 16)
		if !haveUpper || upper != currentUpper {
			if err := flush(); err != nil {
				return err
			}
			if err := writeExtendedAddressRecord(bw, upper); err != nil {
				return err
			}
			currentUpper = upper
			haveUpper = true
		}

		if len(run) == 0 {
			runStart = addr
			run = append(run, img[addr])
			continue
		}

		contiguous := addr == runStart+uint32(len(run))
		if contiguous && len(run) < maxRecordBytes {
			run = append(run, img[addr])
			continue
		}

		if err := flush(); err != nil {
			return err
		}
		runStart = addr
		run = append(run, img[addr])
	}
	if err := flush(); err != nil {
		return err
	}

	if _, err := bw.WriteString(":00000001FF\n"); err != nil {
		return err
	}
	return bw.Flush()
}
