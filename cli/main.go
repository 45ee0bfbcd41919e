package main

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"bptfile"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <index_file>\n", os.Args[0])
		os.Exit(1)
	}

	db, err := bptfile.Open(os.Args[1], 0644, nil)
	if err != nil {
		log.WithError(err).Fatal("open index file")
	}
	defer db.Close()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "get":
			if len(fields) < 2 {
				continue
			}
			key, ok := parseKey(fields[1])
			if !ok {
				continue
			}
			val, err := db.Get(key)
			if err == bptfile.ErrNotFound {
				continue
			} else if err != nil {
				log.WithError(err).Error("get failed")
				continue
			}
			fmt.Println(printable(val))

		case "insert":
			if len(fields) < 3 {
				continue
			}
			key, ok := parseKey(fields[1])
			if !ok {
				continue
			}
			if err := db.Insert(key, []byte(fields[2])); err != nil {
				log.WithError(err).Error("insert failed")
			}

		case "bulkload":
			if len(fields) < 2 {
				continue
			}
			if err := bulkLoadCSV(db, fields[1]); err != nil {
				log.WithError(err).Error("bulk load failed")
			}

		case "stats":
			st, err := db.Stats()
			if err != nil {
				log.WithError(err).Error("stats failed")
				continue
			}
			fmt.Printf("height=%d pages=%d keys=%d fingerprint=%016x\n",
				st.Height, st.PageCount, st.KeyCount, st.Fingerprint)

		case "check":
			if err := db.Check(); err != nil {
				log.WithError(err).Error("check failed")
				continue
			}
			fmt.Println("ok")

		case "help":
			fmt.Println("commands: bulkload <csv>, insert <key> <val8>, get <key>, stats, check, exit")

		case "exit", "quit":
			return
		}
	}
}

// parseKey accepts only values representable as int32; anything outside the
// range is rejected at the boundary before reaching the tree.
func parseKey(s string) (int32, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, false
	}
	return int32(n), true
}

func printable(val []byte) string {
	out := make([]byte, len(val))
	for i, c := range val {
		if c == 0 {
			out[i] = ' '
		} else {
			out[i] = c
		}
	}
	return string(out)
}

func bulkLoadCSV(db *bptfile.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return db.BulkLoad(newCSVIterator(bufio.NewScanner(f)))
}

// csvIterator streams key,value records from a CSV file. The first line is
// treated as a header only when it does not parse as a record; malformed
// lines elsewhere are skipped.
type csvIterator struct {
	scanner  *bufio.Scanner
	pending  bool
	pendingK int32
	pendingV []byte
}

func newCSVIterator(scanner *bufio.Scanner) *csvIterator {
	it := &csvIterator{scanner: scanner}
	if scanner.Scan() {
		if k, v, ok := parseCSVLine(scanner.Text()); ok {
			it.pending = true
			it.pendingK = k
			it.pendingV = v
		}
	}
	return it
}

func (it *csvIterator) Next() (int32, []byte, bool, error) {
	if it.pending {
		it.pending = false
		return it.pendingK, it.pendingV, true, nil
	}
	for it.scanner.Scan() {
		if k, v, ok := parseCSVLine(it.scanner.Text()); ok {
			return k, v, true, nil
		}
	}
	return 0, nil, false, it.scanner.Err()
}

func parseCSVLine(line string) (int32, []byte, bool) {
	if line == "" {
		return 0, nil, false
	}
	comma := strings.IndexByte(line, ',')
	if comma < 0 {
		return 0, nil, false
	}
	k := strings.TrimSpace(line[:comma])
	v := strings.TrimSpace(line[comma+1:])
	key, ok := parseKey(k)
	if !ok {
		return 0, nil, false
	}
	return key, []byte(v), true
}
