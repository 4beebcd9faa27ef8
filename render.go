package main

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

func render(w io.Writer, r *Report, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return enc.Close()
	case "text", "":
		_, err := io.WriteString(w, renderText(r))
		return err
	}
	return fmt.Errorf("unknown format %q (want text or yaml)", format)
}

func banner(sb *strings.Builder, title string) {
	sb.WriteString("\n=============================================\n")
	sb.WriteString(" " + title + "\n")
	sb.WriteString("=============================================\n")
}

func renderText(r *Report) string {
	var sb strings.Builder

	banner(&sb, "SESSION")
	fmt.Fprintf(&sb, "    - Handle: %d\n", r.Handle)
	fmt.Fprintf(&sb, "    - ID: %s\n", r.Session)
	fmt.Fprintf(&sb, "    - ATR: %s\n", r.ATR)

	if r.ISD != nil {
		banner(&sb, "ISSUER SECURITY DOMAIN")
		fmt.Fprintf(&sb, "    - AID: %s\n", r.ISD.AID)
		if r.ISD.GPVersion != "" {
			fmt.Fprintf(&sb, "    - GlobalPlatform: %s\n", r.ISD.GPVersion)
		}
		if r.ISD.MaxCommandLength != 0 {
			fmt.Fprintf(&sb, "    - Max command length: %d\n", r.ISD.MaxCommandLength)
		}
	}

	if c := r.CPLC; c != nil {
		banner(&sb, "CARD PRODUCTION LIFE CYCLE")
		fmt.Fprintf(&sb, "    - IC fabricator: %s\n", c.ICFabricator)
		fmt.Fprintf(&sb, "    - IC type: %s\n", c.ICType)
		fmt.Fprintf(&sb, "    - OS: %s level %s", c.OperatingSystemID, c.OperatingSystemLevel)
		if c.OperatingSystemDate != "" {
			fmt.Fprintf(&sb, " released %s", c.OperatingSystemDate)
		}
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "    - IC serial: %s batch %s\n", c.ICSerialNumber, c.ICBatchIdentifier)
	}

	if r.LogicalChannel != 0 {
		fmt.Fprintf(&sb, "\n>> ISD selected again on logical channel %d\n", r.LogicalChannel)
	}

	if len(r.Exchanges) > 0 {
		banner(&sb, "APDU EXCHANGES")
		for _, line := range r.Exchanges {
			sb.WriteString("    " + line + "\n")
		}
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&sb, "(!) %s\n", e)
	}
	return sb.String()
}
