package main

import (
	"context"
	"fmt"

	"github.com/gregLibert/secure-element/pkg/gp"
	"github.com/gregLibert/secure-element/pkg/iso7816"
	"github.com/gregLibert/secure-element/pkg/se"
	"github.com/gregLibert/secure-element/pkg/tlv"
)

// Report is what one probe run learned about the Secure Element.
type Report struct {
	Session        string      `yaml:"session"`
	Handle         uint32      `yaml:"handle"`
	ATR            string      `yaml:"atr"`
	ISD            *ISDReport  `yaml:"isd,omitempty"`
	CPLC           *CPLCReport `yaml:"cplc,omitempty"`
	LogicalChannel uint8       `yaml:"logical_channel,omitempty"`
	Exchanges      []string    `yaml:"exchanges"`
	Errors         []string    `yaml:"errors,omitempty"`
}

type ISDReport struct {
	AID              string `yaml:"aid"`
	GPVersion        string `yaml:"gp_version,omitempty"`
	MaxCommandLength uint16 `yaml:"max_command_length,omitempty"`
}

type CPLCReport struct {
	ICFabricator          string `yaml:"ic_fabricator"`
	ICType                string `yaml:"ic_type"`
	OperatingSystemID     string `yaml:"os_id"`
	OperatingSystemDate   string `yaml:"os_release_date,omitempty"`
	OperatingSystemLevel  string `yaml:"os_release_level"`
	ICFabricationDate     string `yaml:"ic_fabrication_date,omitempty"`
	ICSerialNumber        string `yaml:"ic_serial_number"`
	ICBatchIdentifier     string `yaml:"ic_batch_identifier"`
	ICPersonalizationDate string `yaml:"ic_personalization_date,omitempty"`
}

// recorder logs every APDU that goes through a transmitter.
type recorder struct {
	inner iso7816.Transmitter
	log   *[]string
}

func (r recorder) Transmit(cmd []byte) ([]byte, error) {
	*r.log = append(*r.log, "> "+tlv.Spaced(cmd))
	resp, err := r.inner.Transmit(cmd)
	if err != nil {
		*r.log = append(*r.log, "! "+err.Error())
		return nil, err
	}
	*r.log = append(*r.log, "< "+tlv.Spaced(resp))
	return resp, nil
}

// probe runs the whole sequence on s and always leaves the session closed.
// Failures after the session is open are collected in the report; the first one is returned.
func probe(ctx context.Context, s *se.Session, logicalChannel bool) (report *Report, err error) {
	h, err := s.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	report = &Report{Handle: uint32(h), Session: s.ID().String()}

	fail := func(step string, e error) {
		e = fmt.Errorf("%s: %w", step, e)
		report.Errors = append(report.Errors, e.Error())
		if err == nil {
			err = e
		}
	}
	defer func() {
		if s.State() == se.StateActivated {
			if e := s.DeactivateInterface(ctx); e != nil {
				fail("deactivate", e)
			}
		}
		if !s.Disconnect(ctx, h) {
			report.Errors = append(report.Errors, "disconnect: not acknowledged by the controller")
		}
	}()

	atr, e := s.GetAtr(ctx, h)
	if e != nil {
		fail("get ATR", e)
		return report, err
	}
	report.ATR = fmt.Sprintf("%X", atr)

	if e := s.ActivateInterface(ctx); e != nil {
		fail("activate", e)
		return report, err
	}

	client := iso7816.NewClient(recorder{inner: s.Conn(ctx, h), log: &report.Exchanges})

	fci, _, e := gp.ReadISD(client)
	if e != nil {
		fail("read ISD", e)
		return report, err
	}
	report.ISD = &ISDReport{
		AID:              fmt.Sprintf("%X", fci.AID),
		GPVersion:        fci.GPVersion(),
		MaxCommandLength: fci.Proprietary.MaxCommandLength,
	}

	if cplc, _, e := gp.ReadCPLC(client); e != nil {
		fail("read CPLC", e)
	} else {
		report.CPLC = cplcReport(cplc)
	}

	if logicalChannel {
		n, e := selectOnChannel(client)
		if e != nil {
			fail("logical channel", e)
		}
		report.LogicalChannel = n
	}
	return report, err
}

// selectOnChannel opens a logical channel, selects the ISD on it and closes it again.
func selectOnChannel(client *iso7816.Client) (uint8, error) {
	trace, err := client.Send(iso7816.ManageChannelOpen(iso7816.ClassInterindustry))
	if err != nil {
		return 0, err
	}
	n, err := iso7816.OpenedChannel(trace)
	if err != nil {
		return 0, err
	}

	cla, err := iso7816.ClassInterindustry.WithChannel(n)
	if err != nil {
		return n, err
	}
	trace, err = client.Send(gp.SelectISD(cla))
	if err == nil {
		err = trace.Err()
	}

	closeCmd, cerr := iso7816.ManageChannelClose(iso7816.ClassInterindustry, n)
	if cerr == nil {
		var ct iso7816.Trace
		if ct, cerr = client.Send(closeCmd); cerr == nil {
			cerr = ct.Err()
		}
	}
	if err != nil {
		return n, err
	}
	return n, cerr
}

func cplcReport(c *gp.CPLC) *CPLCReport {
	return &CPLCReport{
		ICFabricator:          fmt.Sprintf("%X", c.ICFabricator),
		ICType:                fmt.Sprintf("%X", c.ICType),
		OperatingSystemID:     fmt.Sprintf("%X", c.OperatingSystemID),
		OperatingSystemDate:   gp.Date(c.OperatingSystemReleaseDate),
		OperatingSystemLevel:  fmt.Sprintf("%X", c.OperatingSystemReleaseLevel),
		ICFabricationDate:     gp.Date(c.ICFabricationDate),
		ICSerialNumber:        fmt.Sprintf("%X", c.ICSerialNumber),
		ICBatchIdentifier:     fmt.Sprintf("%X", c.ICBatchIdentifier),
		ICPersonalizationDate: gp.Date(c.ICPersonalizationDate),
	}
}
