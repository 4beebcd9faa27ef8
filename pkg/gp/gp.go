// Package gp reads the GlobalPlatform data an embedded Secure Element exposes without
// authentication: the Issuer Security Domain FCI returned by SELECT and the Card Production
// Life Cycle data returned by GET DATA.
package gp

import (
	"fmt"

	"github.com/gregLibert/secure-element/pkg/iso7816"
)

// ISDAID is the default AID of the Issuer Security Domain.
var ISDAID = []byte{0xA0, 0x00, 0x00, 0x01, 0x51, 0x00, 0x00, 0x00}

// SelectISD builds SELECT by name for the Issuer Security Domain.
func SelectISD(cla iso7816.Class) *iso7816.CommandAPDU {
	return iso7816.SelectByAID(cla, ISDAID)
}

// GetCPLC builds GET DATA for tag 9F7F, i.e. 80 CA 9F 7F 00.
func GetCPLC() *iso7816.CommandAPDU {
	return iso7816.NewCommandAPDU(iso7816.ClassGlobalPlatform, iso7816.INS_GET_DATA, 0x9F, 0x7F, nil, iso7816.MaxShortLe)
}

// ReadISD selects the ISD and parses the FCI it answers with.
func ReadISD(c *iso7816.Client) (*FCI, iso7816.Trace, error) {
	trace, err := c.Send(SelectISD(iso7816.ClassInterindustry))
	if err != nil {
		return nil, trace, fmt.Errorf("select ISD: %w", err)
	}
	if err := trace.Err(); err != nil {
		return nil, trace, fmt.Errorf("select ISD: %w", err)
	}
	fci, err := ParseFCI(trace.Data())
	return fci, trace, err
}

// ReadCPLC fetches and parses the CPLC data. The ISD must be selected on the basic channel.
func ReadCPLC(c *iso7816.Client) (*CPLC, iso7816.Trace, error) {
	trace, err := c.Send(GetCPLC())
	if err != nil {
		return nil, trace, fmt.Errorf("get CPLC: %w", err)
	}
	if err := trace.Err(); err != nil {
		return nil, trace, fmt.Errorf("get CPLC: %w", err)
	}
	cplc, err := ParseCPLC(trace.Data())
	return cplc, trace, err
}
