package main

import (
	"testing"

	. "github.com/onsi/gomega"
)

func TestParseParam(t *testing.T) {
	g := NewWithT(t)
	name, vals, err := parseParam("icp_gain=1, 1.5,2")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(name).To(Equal("icp_gain"))
	g.Expect(vals).To(Equal([]float64{1, 1.5, 2}))

	_, _, err = parseParam("icp_gain")
	g.Expect(err).To(HaveOccurred())
	_, _, err = parseParam("=1")
	g.Expect(err).To(HaveOccurred())
	_, _, err = parseParam("icp_gain=fast")
	g.Expect(err).To(HaveOccurred())
}

func TestSortedKeys(t *testing.T) {
	g := NewWithT(t)
	g.Expect(sortedKeys(map[string]float64{"b": 1, "a": 2, "c": 0})).To(Equal([]string{"a", "b", "c"}))
}
