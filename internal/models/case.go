package models

import (
	"fmt"
	"time"
)

// CaseStatusOpen is the only status a case carries today. Cases are never
// deleted; closing workflows would add further statuses here.
const CaseStatusOpen = "OPEN"

// Case aggregates everything known about one suspected attacker within a
// zone. It is keyed by the derived zone:ip:asn string and carries the latest
// materialized threat metrics plus generated report artifacts.
type Case struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	UUID    string `json:"uuid" gorm:"uniqueIndex"`
	Key     string `json:"key" gorm:"uniqueIndex"`
	Zone    string `json:"zone"`
	IP      string `json:"ip"`
	ASN     uint   `json:"asn"`
	Country string `json:"country"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen" gorm:"index"`
	Status    string    `json:"status"`

	AttackRPS         float64 `json:"attack_rps"`
	EstBandwidthMbps  float64 `json:"est_bandwidth_mbps"`
	SystemCapacityRPS float64 `json:"system_capacity_rps"`
	AttackForce       float64 `json:"af"`
	DefenseForce      float64 `json:"df"`
	BalanceOfForce    float64 `json:"bof"`
	EvidenceCount     int     `json:"evidence_count"`
	Mercy             float64 `json:"mercy"`
	Justice           float64 `json:"justice"`

	AbuseReport     *string `json:"abuse_report" gorm:"type:text"`
	Section504Draft *string `json:"section504_draft" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CaseKey derives the unique case key for a zone/ip/asn triple.
func CaseKey(zone, ip string, asn uint) string {
	return fmt.Sprintf("%s:%s:%d", zone, ip, asn)
}
