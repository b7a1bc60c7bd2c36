package board

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"pushstep.io/input"
)

type fakeLine struct {
	name   string
	levels []gpio.Level
	closed int
}

func (l *fakeLine) Out(lvl gpio.Level) error {
	l.levels = append(l.levels, lvl)
	return nil
}

func (l *fakeLine) Close() error {
	l.closed++
	return nil
}

func (l *fakeLine) String() string {
	return l.name
}

type fakeOpener struct {
	lines   map[string]*fakeLine
	order   []string
	fail    string
	button  input.Config
	stopped int
}

func newOpener() *fakeOpener {
	return &fakeOpener{lines: make(map[string]*fakeLine)}
}

func (o *fakeOpener) Output(name string, initial gpio.Level) (Line, error) {
	if name == o.fail {
		return nil, ErrNoLine
	}
	l := &fakeLine{name: name, levels: []gpio.Level{initial}}
	o.lines[name] = l
	o.order = append(o.order, name)
	return l, nil
}

func (o *fakeOpener) Button(name string, cfg input.Config, ch chan<- input.Event) (func() error, error) {
	if name == o.fail {
		return nil, ErrNoLine
	}
	o.button = cfg
	return func() error {
		o.stopped++
		return nil
	}, nil
}

func testConfig() Config {
	return Config{
		Indicator:       "led",
		Enable:          "en",
		Dir:             "dir",
		Step:            "step",
		Button:          "btn",
		ButtonActiveLow: true,
	}
}

func TestOpen(t *testing.T) {
	o := newOpener()
	b, err := open(o, testConfig(), make(chan input.Event))
	if err != nil {
		t.Fatal(err)
	}
	initial := map[string]gpio.Level{
		"led":  gpio.Low,
		"en":   gpio.High,
		"dir":  gpio.Low,
		"step": gpio.Low,
	}
	for name, want := range initial {
		l := o.lines[name]
		if l == nil {
			t.Fatalf("%s not opened", name)
		}
		if l.levels[0] != want {
			t.Errorf("%s initially %v, want %v", name, l.levels[0], want)
		}
	}
	if b.Enable.String() != "en" || b.Step.String() != "step" {
		t.Errorf("lines assigned wrongly: enable %s, step %s", b.Enable, b.Step)
	}
	if !o.button.ActiveLow || o.button.Button != input.Action {
		t.Errorf("button configured as %+v", o.button)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if o.stopped != 1 {
		t.Errorf("button stopped %d times", o.stopped)
	}
	for name, l := range o.lines {
		if l.closed != 1 {
			t.Errorf("%s closed %d times", name, l.closed)
		}
	}
}

func TestOpenWithoutButton(t *testing.T) {
	o := newOpener()
	cfg := testConfig()
	cfg.Button = ""
	b, err := open(o, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if len(o.lines) != 4 {
		t.Errorf("opened %v", o.order)
	}
}

func TestOpenDuplicate(t *testing.T) {
	o := newOpener()
	cfg := testConfig()
	cfg.Button = cfg.Step
	if _, err := open(o, cfg, nil); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("open = %v, want ErrDuplicate", err)
	}
	if len(o.lines) > 0 {
		t.Errorf("lines opened before rejecting duplicates: %v", o.order)
	}
}

func TestOpenPartialFailure(t *testing.T) {
	for _, fail := range []string{"en", "step", "btn"} {
		o := newOpener()
		o.fail = fail
		if _, err := open(o, testConfig(), nil); !errors.Is(err, ErrNoLine) {
			t.Errorf("%s: open = %v, want ErrNoLine", fail, err)
		}
		for name, l := range o.lines {
			if l.closed != 1 {
				t.Errorf("%s: line %s not released", fail, name)
			}
		}
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = "sysfs"
	if _, err := Open(cfg, nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Open = %v, want ErrUnsupported", err)
	}
}
