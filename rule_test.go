package zwint

import "testing"

func TestNewRuleRejectsEmptyKey(t *testing.T) {
	_, err := newRule(1, RuleSpec{Pattern: "."}, 0)
	var zerr *Error
	if err == nil {
		t.Fatal("expected error for empty key")
	}
	if !asError(err, &zerr) || zerr.Code != BadArgument {
		t.Errorf("err = %v, want BadArgument", err)
	}
}

func TestNewRuleRejectsEmptyPattern(t *testing.T) {
	_, err := newRule(1, RuleSpec{Key: "k"}, 0)
	var zerr *Error
	if !asError(err, &zerr) || zerr.Code != BadArgument {
		t.Errorf("err = %v, want BadArgument", err)
	}
}

func TestNewRuleRejectsBadPattern(t *testing.T) {
	_, err := newRule(1, RuleSpec{Key: "k", Pattern: "("}, 0)
	var zerr *Error
	if !asError(err, &zerr) || zerr.Code != RegexCompile {
		t.Errorf("err = %v, want RegexCompile", err)
	}
}

func TestNewRuleKeepsBadResponseTemplateAsFireTimeError(t *testing.T) {
	r, err := newRule(1, RuleSpec{Key: "k", Pattern: ".", Response: "ZZ"}, 0)
	if err != nil {
		t.Fatalf("newRule should succeed despite a malformed template (§7 TemplateSyntax is a notification, not a caller error): %v", err)
	}
	if r.tmpl != nil {
		t.Error("tmpl should stay nil when compilation failed")
	}
	if r.tmplErr == nil {
		t.Error("tmplErr should record the compile failure")
	}
}

func TestNewRuleInitialArmedState(t *testing.T) {
	withoutArm := mustRule(t, RuleSpec{Key: "k", Pattern: "."}, 0)
	if !withoutArm.armed {
		t.Error("rule without arm_pattern should start armed")
	}
	withArm := mustRule(t, RuleSpec{Key: "k", Pattern: ".", ArmPattern: "^01"}, 0)
	if withArm.armed {
		t.Error("rule with arm_pattern should start unarmed")
	}
}

func TestRuleSilent(t *testing.T) {
	r := mustRule(t, RuleSpec{Key: "*hidden", Pattern: "."}, 0)
	if !r.Silent() {
		t.Error("key starting with * should be silent")
	}
	r2 := mustRule(t, RuleSpec{Key: "visible", Pattern: "."}, 0)
	if r2.Silent() {
		t.Error("key not starting with * should not be silent")
	}
}

func TestRuleAppliesTo(t *testing.T) {
	tests := []struct {
		name      string
		direction Direction
		armed     bool
		send      bool
		want      bool
	}{
		{"monitor armed applies to receive", DirectionMonitor, true, false, true},
		{"monitor armed does not apply to send", DirectionMonitor, true, true, false},
		{"intercept armed applies to send", DirectionIntercept, true, true, true},
		{"intercept armed does not apply to receive", DirectionIntercept, true, false, false},
		// Unarmed rules are eligible on the side opposite their stated
		// direction, since that is where an arm_pattern is matched (S5
		// arms an intercept rule on a controller->host frame before its
		// host->controller pattern can fire).
		{"monitor unarmed applies to send for arming", DirectionMonitor, false, true, true},
		{"monitor unarmed does not apply to receive", DirectionMonitor, false, false, false},
		{"intercept unarmed applies to receive for arming", DirectionIntercept, false, false, true},
		{"intercept unarmed does not apply to send", DirectionIntercept, false, true, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &Rule{Direction: tc.direction, armed: tc.armed}
			if got := r.appliesTo(tc.send); got != tc.want {
				t.Errorf("appliesTo(%v) = %v, want %v", tc.send, got, tc.want)
			}
		})
	}
}

func TestRuleActiveRegex(t *testing.T) {
	r := mustRule(t, RuleSpec{Key: "k", Pattern: "pattern-re", ArmPattern: "arm-re"}, 0)
	if r.activeRegex() != r.armPattern {
		t.Error("unarmed rule should use arm pattern")
	}
	r.armed = true
	if r.activeRegex() != r.pattern {
		t.Error("armed rule should use main pattern")
	}
}

// asError is a small type-assertion stand-in for errors.As (it does not
// unwrap), kept local to avoid importing errors in every test file that
// only checks a *Error code.
func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
