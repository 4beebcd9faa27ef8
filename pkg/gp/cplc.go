package gp

import (
	"fmt"
	"strings"

	"github.com/gregLibert/secure-element/pkg/tlv"
)

// CPLCSize is the length of the CPLC value (tag 9F7F).
const CPLCSize = 42

// CPLC is the Card Production Life Cycle data. Dates are YDDD in BCD:
// last digit of the year followed by the day of the year.
type CPLC struct {
	ICFabricator                []byte
	ICType                      []byte
	OperatingSystemID           []byte
	OperatingSystemReleaseDate  []byte
	OperatingSystemReleaseLevel []byte
	ICFabricationDate           []byte
	ICSerialNumber              []byte
	ICBatchIdentifier           []byte
	ICModuleFabricator          []byte
	ICModulePackagingDate       []byte
	ICCManufacturer             []byte
	ICEmbeddingDate             []byte
	ICPrePersonalizer           []byte
	ICPrePersoEquipmentDate     []byte
	ICPrePersoEquipmentID       []byte
	ICPersonalizer              []byte
	ICPersonalizationDate       []byte
	ICPersoEquipmentID          []byte
}

// ParseCPLC decodes the CPLC value, accepting it bare or wrapped in tag 9F7F.
func ParseCPLC(data []byte) (*CPLC, error) {
	if len(data) != CPLCSize {
		inner, err := tlv.Find(data, "9F7F")
		if err != nil {
			return nil, fmt.Errorf("parse CPLC: %w", err)
		}
		data = inner
	}
	if len(data) != CPLCSize {
		return nil, fmt.Errorf("parse CPLC: %d bytes, want %d", len(data), CPLCSize)
	}

	c := &CPLC{}
	fields := []*[]byte{
		&c.ICFabricator, &c.ICType,
		&c.OperatingSystemID, &c.OperatingSystemReleaseDate, &c.OperatingSystemReleaseLevel,
		&c.ICFabricationDate, &c.ICSerialNumber, &c.ICBatchIdentifier,
		&c.ICModuleFabricator, &c.ICModulePackagingDate,
		&c.ICCManufacturer, &c.ICEmbeddingDate,
		&c.ICPrePersonalizer, &c.ICPrePersoEquipmentDate, &c.ICPrePersoEquipmentID,
		&c.ICPersonalizer, &c.ICPersonalizationDate, &c.ICPersoEquipmentID,
	}
	widths := []int{2, 2, 2, 2, 2, 2, 4, 2, 2, 2, 2, 2, 2, 2, 4, 2, 2, 4}

	off := 0
	for i, f := range fields {
		*f = append([]byte(nil), data[off:off+widths[i]]...)
		off += widths[i]
	}
	return c, nil
}

// Date renders a YDDD field as "Y-DDD", or "" for an unset (all zero) date.
func Date(field []byte) string {
	if len(field) != 2 || (field[0] == 0 && field[1] == 0) {
		return ""
	}
	return fmt.Sprintf("%X-%03X", field[0]>>4, uint16(field[0]&0x0F)<<8|uint16(field[1]))
}

func (c *CPLC) String() string {
	var sb strings.Builder
	sb.WriteString("Card Production Life Cycle")
	tlv.WriteStructFields(&sb, "CPLC", c)
	return sb.String()
}
