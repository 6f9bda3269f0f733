package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/viant/kproc"
	"github.com/viant/kproc/runtime/process"
	"github.com/viant/kproc/service/registry"
)

const help = `commands:
  ps                      list live processes
  spawn <name> [parent]   create a process
  admit <pid>             admit a new process
  state <pid> <state>     set process state (ready, waiting, running, terminated)
  kill <pid>              kill a process
  tick [n]                raise n timer interrupts (default: one quantum)
  yield                   yield on behalf of the CPU owner
  schedule                run the scheduler without switching
  stats                   show counters
  mem                     show frame and heap usage
  history                 list terminated processes
  exit                    quit
`

type console struct {
	rt     *kproc.Runtime
	config *kproc.Config
	out    io.Writer
	entry  uint64
}

func (c *console) run(in io.Reader) {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(c.out, "kproc> ")
	for scanner.Scan() {
		args := strings.Fields(scanner.Text())
		if len(args) > 0 {
			if args[0] == "exit" || args[0] == "quit" {
				return
			}
			if err := c.execute(args[0], args[1:]); err != nil {
				fmt.Fprintln(c.out, "error:", err)
			}
		}
		fmt.Fprint(c.out, "kproc> ")
	}
}

func (c *console) execute(command string, args []string) error {
	ctx := context.Background()
	switch command {
	case "help", "?":
		fmt.Fprint(c.out, help)
	case "ps":
		return c.ps()
	case "spawn":
		if len(args) == 0 {
			return fmt.Errorf("usage: spawn <name> [parent]")
		}
		request := &registry.Request{Name: args[0], Entry: c.nextEntry()}
		if len(args) > 1 {
			parent, err := parsePID(args[1])
			if err != nil {
				return err
			}
			request.Parent = &parent
		}
		pid, err := c.rt.Create(ctx, request)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "created %v\n", pid)
	case "admit", "kill":
		if len(args) != 1 {
			return fmt.Errorf("usage: %v <pid>", command)
		}
		pid, err := parsePID(args[0])
		if err != nil {
			return err
		}
		if command == "admit" {
			return c.rt.Admit(ctx, pid)
		}
		return c.rt.Kill(ctx, pid)
	case "state":
		if len(args) != 2 {
			return fmt.Errorf("usage: state <pid> <state>")
		}
		pid, err := parsePID(args[0])
		if err != nil {
			return err
		}
		return c.rt.SetState(ctx, pid, process.State(strings.ToLower(args[1])))
	case "tick":
		n := int(c.config.Switch.Quantum)
		if len(args) > 0 {
			var err error
			if n, err = strconv.Atoi(args[0]); err != nil || n <= 0 {
				return fmt.Errorf("invalid tick count: %v", args[0])
			}
		}
		delivered := c.rt.Tick(n)
		owner, _ := c.rt.Owner()
		fmt.Fprintf(c.out, "delivered %v/%v, on cpu: %v\n", delivered, n, owner)
	case "yield":
		if err := c.rt.Yield(ctx); err != nil {
			return err
		}
		owner, _ := c.rt.Owner()
		fmt.Fprintf(c.out, "on cpu: %v\n", owner)
	case "schedule":
		pid, ok := c.rt.Schedule()
		if !ok {
			fmt.Fprintln(c.out, "nothing to run")
			return nil
		}
		fmt.Fprintf(c.out, "running: %v\n", pid)
	case "stats":
		c.stats()
	case "mem":
		m := c.rt.Memory()
		fmt.Fprintf(c.out, "frames: %v allocated, %v available\nheap: %v used, %v free\n", m.FramesAllocated, m.FramesAvailable, m.HeapUsed, m.HeapFree)
	case "history":
		records, err := c.rt.History(ctx)
		if err != nil {
			return err
		}
		c.table(records)
	default:
		return fmt.Errorf("unknown command %q, try help", command)
	}
	return nil
}

func (c *console) ps() error {
	records, err := c.rt.List()
	if err != nil {
		return err
	}
	c.table(records)
	fmt.Fprintf(c.out, "ready queue: %v\n", c.rt.ReadyQueue())
	return nil
}

func (c *console) table(records []*process.Record) {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PID\tPPID\tNAME\tSTATE\tROOT\tRIP\tSUSPENDED")
	for _, record := range records {
		parent := "-"
		if record.ParentPID != nil {
			parent = record.ParentPID.String()
		}
		var root uint64
		if record.AddressSpace != nil {
			root = record.AddressSpace.Root
		}
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%#x\t%#x\t%v\n", record.PID, parent, record.Name, record.State, root, record.Context.RIP, record.Suspension)
	}
	_ = w.Flush()
}

func (c *console) stats() {
	s := c.rt.Stats()
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "boot\t%v\n", s.BootID)
	fmt.Fprintf(w, "created\t%v\n", s.Created)
	fmt.Fprintf(w, "killed\t%v\n", s.Killed)
	fmt.Fprintf(w, "ticks\t%v\n", s.Ticks)
	fmt.Fprintf(w, "schedules\t%v\n", s.Schedules)
	fmt.Fprintf(w, "switches\t%v (%v preempt, %v yield)\n", s.Switches, s.Preemptions, s.Yields)
	fmt.Fprintf(w, "dropped events\t%v\n", s.DroppedEvents)
	_ = w.Flush()
}

// demo spawns n processes and runs three full rounds of timer preemption.
func (c *console) demo(n int) error {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if _, err := c.rt.Create(ctx, &registry.Request{Name: fmt.Sprintf("worker-%d", i+1), Entry: c.nextEntry()}); err != nil {
			return err
		}
	}
	for round := 0; round < 3*n; round++ {
		c.rt.Tick(int(c.config.Switch.Quantum))
		owner, _ := c.rt.Owner()
		fmt.Fprintf(c.out, "quantum %d: pid %v\n", round+1, owner)
	}
	if err := c.ps(); err != nil {
		return err
	}
	c.stats()
	return nil
}

// nextEntry returns a distinct entry address inside the code region.
func (c *console) nextEntry() uint64 {
	c.entry += 0x10
	return c.entry
}

func parsePID(value string) (process.PID, error) {
	pid, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid pid %q", value)
	}
	return process.PID(pid), nil
}

func newConsole(rt *kproc.Runtime, config *kproc.Config, out io.Writer) *console {
	ret := &console{rt: rt, config: config, out: out, entry: 0x40_0000}
	if layout, err := config.ProcessLayout(); err == nil {
		for _, region := range layout {
			if region.Name == process.RegionCode {
				ret.entry = region.Start
			}
		}
	}
	return ret
}
