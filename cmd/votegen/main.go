// Command votegen produces synthetic voter rolls for testing the audit
// pipeline. A fraction of the generated records are seeded with ghost
// patterns (implausible age, decades of inactivity) and near-duplicate
// pairs (mutated names sharing DOB and pincode).
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
)

var firstNames = []string{
	"Rajesh", "Priya", "Amit", "Sunita", "Vikram", "Anjali", "Suresh",
	"Kavita", "Ramesh", "Deepa", "Arun", "Meena", "Sanjay", "Lakshmi",
	"Manoj", "Geeta", "Ashok", "Rekha", "Vijay", "Pooja",
}

var lastNames = []string{
	"Kumar", "Sharma", "Patel", "Singh", "Reddy", "Gupta", "Verma",
	"Joshi", "Nair", "Iyer", "Das", "Rao", "Mishra", "Chauhan", "Yadav",
}

var streets = []string{
	"MG Road", "Station Road", "Gandhi Nagar", "Nehru Street",
	"Park Avenue", "Temple Road", "Market Lane", "Lake View",
}

var districts = []string{
	"Pune", "Nagpur", "Mumbai", "Nashik", "Thane", "Aurangabad", "Solapur",
}

var header = []string{
	"Voter_ID", "First_Name", "Last_Name", "DOB", "Gender", "Address",
	"Pincode", "Registration_Year", "Last_Voted_Year", "Masked_Aadhaar",
}

type generator struct {
	rng  *rand.Rand
	seen map[string]bool
}

func (g *generator) voterID() string {
	letters := "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	for {
		var b strings.Builder
		for i := 0; i < 3; i++ {
			b.WriteByte(letters[g.rng.Intn(len(letters))])
		}
		id := fmt.Sprintf("%s%07d", b.String(), g.rng.Intn(10000000))
		if !g.seen[id] {
			g.seen[id] = true
			return id
		}
	}
}

func (g *generator) maskedAadhaar() string {
	return fmt.Sprintf("XXXX-XXXX-%04d", g.rng.Intn(10000))
}

func (g *generator) address() (string, string) {
	addr := fmt.Sprintf("%d %s, %s",
		1+g.rng.Intn(200), streets[g.rng.Intn(len(streets))],
		districts[g.rng.Intn(len(districts))])
	pincode := fmt.Sprintf("%06d", 400001+g.rng.Intn(45000))
	return addr, pincode
}

func (g *generator) gender() string {
	if g.rng.Intn(2) == 0 {
		return "M"
	}
	return "F"
}

// normalRecord generates an ordinary voter aged 18-90.
func (g *generator) normalRecord() []string {
	age := 18 + g.rng.Intn(73)
	birthYear := 2026 - age
	dob := fmt.Sprintf("%d-%02d-%02d", birthYear, 1+g.rng.Intn(12), 1+g.rng.Intn(28))

	regYear := birthYear + 18 + g.rng.Intn(5)
	if regYear > 2025 {
		regYear = 2025
	}
	lastVoted := regYear + g.rng.Intn(2026-regYear)

	addr, pincode := g.address()
	return []string{
		g.voterID(),
		firstNames[g.rng.Intn(len(firstNames))],
		lastNames[g.rng.Intn(len(lastNames))],
		dob,
		g.gender(),
		addr,
		pincode,
		fmt.Sprintf("%d", regYear),
		fmt.Sprintf("%d", lastVoted),
		g.maskedAadhaar(),
	}
}

// ghostRecord generates a record with both ghost signals: an age beyond
// plausible lifespan and no recent voting history.
func (g *generator) ghostRecord() []string {
	age := 111 + g.rng.Intn(40)
	birthYear := 2026 - age
	dob := fmt.Sprintf("%d-%02d-%02d", birthYear, 1+g.rng.Intn(12), 1+g.rng.Intn(28))
	regYear := birthYear + 18 + g.rng.Intn(10)

	lastVoted := ""
	if g.rng.Intn(2) == 0 {
		lastVoted = fmt.Sprintf("%d", 1960+g.rng.Intn(35))
	}

	addr, pincode := g.address()
	return []string{
		g.voterID(),
		firstNames[g.rng.Intn(len(firstNames))],
		lastNames[g.rng.Intn(len(lastNames))],
		dob,
		g.gender(),
		addr,
		pincode,
		fmt.Sprintf("%d", regYear),
		lastVoted,
		g.maskedAadhaar(),
	}
}

// mutateName produces a near-duplicate spelling: swapped vowel, dropped
// character, or doubled character.
func (g *generator) mutateName(name string) string {
	if len(name) < 3 {
		return name
	}
	runes := []rune(name)
	pos := 1 + g.rng.Intn(len(runes)-2)
	switch g.rng.Intn(3) {
	case 0:
		vowels := []rune("aeiou")
		runes[pos] = vowels[g.rng.Intn(len(vowels))]
		return string(runes)
	case 1:
		return string(runes[:pos]) + string(runes[pos+1:])
	default:
		return string(runes[:pos]) + string(runes[pos:pos+1]) + string(runes[pos:])
	}
}

// duplicatePair generates two registrations for the same person: shared
// DOB and pincode, slightly different name, distinct voter ids.
func (g *generator) duplicatePair() ([]string, []string) {
	original := g.normalRecord()

	dup := make([]string, len(original))
	copy(dup, original)
	dup[0] = g.voterID()
	dup[1] = g.mutateName(original[1])
	dup[9] = g.maskedAadhaar()

	// Occasionally vary the address while keeping the pincode.
	if g.rng.Intn(2) == 0 {
		dup[5] = fmt.Sprintf("%d %s, %s",
			1+g.rng.Intn(200), streets[g.rng.Intn(len(streets))],
			strings.Split(original[5], ", ")[1])
	}
	return original, dup
}

func main() {
	out := flag.String("out", "voters.csv", "output CSV path")
	total := flag.Int("total", 1000, "total number of records")
	ghostFrac := flag.Float64("ghost-frac", 0.02, "fraction of ghost records")
	dupFrac := flag.Float64("dup-frac", 0.02, "fraction of duplicate pairs")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	g := &generator{
		rng:  rand.New(rand.NewSource(*seed)),
		seen: make(map[string]bool),
	}

	ghosts := int(float64(*total) * *ghostFrac)
	dupPairs := int(float64(*total) * *dupFrac / 2)
	normal := *total - ghosts - dupPairs*2
	if normal < 0 {
		log.Fatalf("ghost-frac and dup-frac leave no room for normal records")
	}

	rows := make([][]string, 0, *total)
	for i := 0; i < normal; i++ {
		rows = append(rows, g.normalRecord())
	}
	for i := 0; i < ghosts; i++ {
		rows = append(rows, g.ghostRecord())
	}
	for i := 0; i < dupPairs; i++ {
		a, b := g.duplicatePair()
		rows = append(rows, a, b)
	}
	g.rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *out, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		log.Fatalf("Failed to write header: %v", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			log.Fatalf("Failed to write row: %v", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatalf("Failed to flush output: %v", err)
	}

	log.Printf("Wrote %d records to %s (%d ghosts, %d duplicate pairs, seed %d)",
		len(rows), *out, ghosts, dupPairs, *seed)
}
