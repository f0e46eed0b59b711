package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/cperrin88/acquire/pkg/acquire"
)

// textProgress renders item lifecycle events as plain lines on stderr, the
// way a batch fetch wants them.
type textProgress struct {
	stdin *bufio.Reader
}

func newTextProgress() *textProgress {
	return &textProgress{stdin: bufio.NewReader(os.Stdin)}
}

func (p *textProgress) Fetch(desc *acquire.ItemDesc) {
	fmt.Fprintf(os.Stderr, "Get: %s\n", desc.Description)
}

func (p *textProgress) Done(desc *acquire.ItemDesc) {
	fmt.Fprintf(os.Stderr, "Fetched: %s\n", desc.Description)
}

func (p *textProgress) IMSHit(desc *acquire.ItemDesc) {
	fmt.Fprintf(os.Stderr, "Hit: %s\n", desc.Description)
}

func (p *textProgress) Fail(desc *acquire.ItemDesc) {
	fmt.Fprintf(os.Stderr, "Err: %s\n", desc.Description)
}

func (p *textProgress) Fetched(size, resumePoint uint64) {
	if size > resumePoint {
		fmt.Fprintf(os.Stderr, "Fetched %d B\n", size-resumePoint)
	}
}

// MediaChange prompts on the terminal and waits for Enter. A closed stdin
// counts as refusal.
func (p *textProgress) MediaChange(media, drive string) bool {
	fmt.Fprintf(os.Stderr, "Please insert the disc labeled: '%s' in the drive '%s' and press [Enter].", media, drive)
	_, err := p.stdin.ReadString('\n')
	return err == nil
}
