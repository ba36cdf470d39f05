package netwalker

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// reSwitchDetailRow matches a "show switch detail" / "show switch" member
// row: "Switch#  Role  Mac Address  Priority  Version State"
var reSwitchDetailRow = regexp.MustCompile(`(?i)^\s*\*?\s*(\d+)\s+(Master|Member|Standby|Active)\s+([0-9A-Fa-f.:]+)`)

var reSwitchSerial = regexp.MustCompile(`(?i)Switch\s+(\d+)\s+[Ss]erial\s*[Nn]umber\s*:\s*(\S+)`)

// ParseStackMembers parses "show switch" / "show switch detail" output for
// traditional StackWise stacks. Returns nil if the command produced no
// recognizable member rows (caller should then try the VSS fallback).
func ParseStackMembers(output string) []StackMember {
	var out []StackMember
	serials := make(map[int]string)

	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		if m := reSwitchSerial.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				serials[n] = m[2]
			}
		}
	}

	sc = bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		m := reSwitchDetailRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, StackMember{
			Number: num,
			Role:   stackRoleFromString(m[2]),
			Serial: serials[num],
		})
	}
	return out
}

func stackRoleFromString(s string) StackRole {
	switch strings.ToLower(s) {
	case "master":
		return RoleMaster
	case "active":
		return RoleActive
	case "standby":
		return RoleStandby
	default:
		return RoleMember
	}
}

// reVSSSerial matches the two serial patterns spec.md §4.3 requires for the
// "show mod" VSS fallback: [A-Z]{3}\d{6}[A-Z]{2} or [A-Z]{3}\d{9}.
var reVSSSerial = regexp.MustCompile(`^[A-Z]{3}(\d{6}[A-Z]{2}|\d{9})$`)

var reModLine = regexp.MustCompile(`(?i)^\s*(\d+)\s+\d+\s+(.+?)\s+(\S+)\s+(\S+)\s*$`)

// ParseStackMembersVSSFallback parses "show mod" output for the Catalyst
// 4500-X / 6500 VSS case, used only when "show switch" is unsupported or
// empty. It parses only the first module section (stopping before MAC or
// sub-module sections) and requires exactly two members whose serials match
// the VSS serial patterns; Switch 1 is Active, Switch 2 is Standby.
func ParseStackMembersVSSFallback(output string) []StackMember {
	var candidates []StackMember

	sc := bufio.NewScanner(strings.NewReader(output))
	inFirstSection := false
	seenDataRow := false
	for sc.Scan() {
		line := sc.Text()
		trim := strings.TrimSpace(line)

		if trim == "" {
			if seenDataRow {
				break // first module section ended
			}
			continue
		}
		if strings.Contains(trim, "Mac address") || strings.Contains(trim, "Sub-Module") {
			break
		}
		if strings.HasPrefix(trim, "Mod ") || strings.HasPrefix(trim, "---") {
			inFirstSection = true
			continue
		}
		if !inFirstSection {
			continue
		}

		m := reModLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		model := strings.TrimSpace(m[3])
		serial := strings.TrimSpace(m[4])
		if !reVSSSerial.MatchString(serial) {
			continue
		}
		candidates = append(candidates, StackMember{
			Number:        num,
			HardwareModel: model,
			Serial:        serial,
		})
		seenDataRow = true
	}

	if len(candidates) != 2 {
		return nil
	}
	candidates[0].Role = RoleActive
	candidates[1].Role = RoleStandby
	return candidates
}
