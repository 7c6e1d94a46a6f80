package report

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/altwalker/gowalker/internal/planner"
)

// JUnit collects step outcomes and writes a JUnit XML report when the run
// ends, for CI systems that ingest that format.
type JUnit struct {
	path  string
	suite string
	cases []junitTestCase

	failures int
	skipped  int
	elapsed  time.Duration
}

// NewJUnit returns a reporter writing JUnit XML to path. The suite name
// defaults to "gowalker".
func NewJUnit(path, suiteName string) *JUnit {
	if suiteName == "" {
		suiteName = "gowalker"
	}
	return &JUnit{path: path, suite: suiteName}
}

func (j *JUnit) Start(info RunInfo) {
	if info.RunID != "" {
		j.suite = j.suite + "." + info.RunID
	}
}

func (j *JUnit) StepStart(step planner.Step) {}

func (j *JUnit) StepEnd(step planner.Step, result StepResult) {
	class := step.ModelName
	if step.IsFixture() {
		class = "fixtures"
	}
	tc := junitTestCase{
		Name:      step.Name,
		ClassName: class,
		Time:      formatSeconds(result.Duration),
		SystemOut: result.Output,
	}
	switch result.Status {
	case StatusFailed:
		j.failures++
		tc.Failure = &junitFailure{Message: "step failed"}
		if result.Error != nil {
			tc.Failure.Message = result.Error.Message
			tc.Failure.Body = result.Error.Trace
		}
	case StatusSkipped:
		j.skipped++
		tc.Skipped = &junitSkipped{}
	}
	j.elapsed += result.Duration
	j.cases = append(j.cases, tc)
}

func (j *JUnit) Error(step planner.Step, message, trace string) {}

func (j *JUnit) End(result RunResult) {
	suite := junitTestSuite{
		Name:     j.suite,
		Tests:    len(j.cases),
		Failures: j.failures,
		Skipped:  j.skipped,
		Time:     formatSeconds(j.elapsed),
		Cases:    j.cases,
	}
	doc := junitTestSuites{
		Tests:    suite.Tests,
		Failures: suite.Failures,
		Time:     suite.Time,
		Suites:   []junitTestSuite{suite},
	}
	raw, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not build the JUnit report: %v\n", err)
		return
	}
	data := append([]byte(xml.Header), raw...)
	data = append(data, '\n')
	if err := writeFileAtomic(j.path, data); err != nil {
		fmt.Fprintf(os.Stderr, "could not write the JUnit report to %s: %v\n", j.path, err)
	}
}

func (j *JUnit) Report() (any, bool) { return nil, false }

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

type junitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     string          `xml:"time,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

type junitSkipped struct{}
