package gp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/secure-element/pkg/tlv"
)

// gpOID is the 1.2.840.114283 arc every GlobalPlatform object identifier lives under.
var gpOID = []byte{0x2A, 0x86, 0x48, 0x86, 0xFC, 0x6B}

// FCI is the File Control Information a Security Domain returns on SELECT (template 6F).
type FCI struct {
	AID         []byte          `tlv:"84"`
	Proprietary ProprietaryData `tlv:"A5"`
}

// ProprietaryData is template A5 of a Security Domain FCI.
type ProprietaryData struct {
	Management *ManagementData `tlv:"73"`
	// ProductionLifeCycle is tag 9F6E, whose layout is left to the card vendor.
	ProductionLifeCycle []byte `tlv:"9F6E"`
	// MaxCommandLength is the largest command data field the SD accepts (tag 9F65).
	MaxCommandLength uint16 `tlv:"9F65"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ManagementData is the Security Domain Management Data (tag 73).
type ManagementData struct {
	OID                []byte `tlv:"06"`
	CardManagement     OIDRef `tlv:"60"`
	CardIdentification OIDRef `tlv:"63"`
	SecureChannel      OIDRef `tlv:"64"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// OIDRef is an application-tagged template wrapping one object identifier.
type OIDRef struct {
	OID []byte `tlv:"06"`
}

// ParseFCI decodes an FCI with or without its 6F wrapper.
func ParseFCI(data []byte) (*FCI, error) {
	if len(data) == 0 {
		return nil, errors.New("empty FCI")
	}

	body := data
	if inner, err := tlv.Find(data, "6F"); err == nil {
		body = inner
	} else if !errors.Is(err, tlv.ErrTagNotFound) {
		return nil, fmt.Errorf("parse FCI: %w", err)
	}

	var fci FCI
	if err := tlv.Unmarshal(body, &fci); err != nil {
		return nil, fmt.Errorf("parse FCI: %w", err)
	}
	if len(fci.AID) == 0 {
		return nil, errors.New("parse FCI: no AID (tag 84)")
	}
	return &fci, nil
}

// GPVersion returns the GlobalPlatform version announced in tag 60, such as "2.2.1",
// or "" when the card does not announce one.
func (f *FCI) GPVersion() string {
	m := f.Proprietary.Management
	if m == nil {
		return ""
	}
	// 1.2.840.114283.2.<major>.<minor>[.<patch>]
	prefix := append(append([]byte(nil), gpOID...), 0x02)
	oid := m.CardManagement.OID
	if !bytes.HasPrefix(oid, prefix) || len(oid) == len(prefix) {
		return ""
	}
	parts := make([]string, 0, len(oid)-len(prefix))
	for _, b := range oid[len(prefix):] {
		parts = append(parts, strconv.Itoa(int(b)))
	}
	return strings.Join(parts, ".")
}

func (f *FCI) String() string {
	var sb strings.Builder
	sb.WriteString("Security Domain FCI")
	tlv.WriteStructFields(&sb, "FCI", f)
	if v := f.GPVersion(); v != "" {
		fmt.Fprintf(&sb, "\n    - GlobalPlatform version: %s", v)
	}
	return sb.String()
}
