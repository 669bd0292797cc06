package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/pkgd/internal/core/domain"
)

func TestClassifyNetwork(t *testing.T) {
	const canonical = "172.33.0.0/16"

	assert.Equal(t, domain.NetworkAbsent, domain.ClassifyNetwork(nil, canonical))
	assert.Equal(t, domain.NetworkCorrect, domain.ClassifyNetwork(
		&domain.NetworkInfo{Subnets: []string{"172.33.0.0/16"}}, canonical))
	assert.Equal(t, domain.NetworkCorrect, domain.ClassifyNetwork(
		&domain.NetworkInfo{Subnets: []string{"fd00::/64", "172.33.0.0/16"}}, canonical),
		"any matching range counts")
	assert.Equal(t, domain.NetworkWrongSubnet, domain.ClassifyNetwork(
		&domain.NetworkInfo{Subnets: []string{"172.18.0.0/16"}}, canonical))
	assert.Equal(t, domain.NetworkWrongSubnet, domain.ClassifyNetwork(
		&domain.NetworkInfo{}, canonical))
}

func TestNetworkInfo_HolderOf(t *testing.T) {
	info := &domain.NetworkInfo{Endpoints: []domain.Endpoint{
		{ContainerName: "pkgd-manager.core", IP: "172.33.1.7"},
	}}

	holder, ok := info.HolderOf("172.33.1.7")
	assert.True(t, ok)
	assert.Equal(t, "pkgd-manager.core", holder)

	_, ok = info.HolderOf("172.33.1.8")
	assert.False(t, ok)
}

func TestNetworkAssignment_SatisfiedBy(t *testing.T) {
	a := domain.NetworkAssignment{
		ContainerName: "pkgd-geth.pkgd",
		IP:            "172.33.1.9",
		Aliases:       []string{"geth.pkgd"},
	}
	assert.True(t, a.Fixed())

	assert.True(t, a.SatisfiedBy(domain.Endpoint{IP: "172.33.1.9", Aliases: []string{"geth.pkgd", "extra"}}))
	assert.False(t, a.SatisfiedBy(domain.Endpoint{IP: "172.33.1.10", Aliases: []string{"geth.pkgd"}}))
	assert.False(t, a.SatisfiedBy(domain.Endpoint{IP: "172.33.1.9"}))

	dynamic := domain.NetworkAssignment{ContainerName: "pkgd-geth.pkgd"}
	assert.False(t, dynamic.Fixed())
	assert.True(t, dynamic.SatisfiedBy(domain.Endpoint{IP: "172.33.0.4"}))
}

func TestServiceTarget_Assignment(t *testing.T) {
	target := domain.ServiceTarget{
		Service:       "geth",
		ContainerName: "pkgd-geth.pkgd",
		Aliases:       []string{"geth.pkgd"},
		IP:            "172.33.1.9",
		Image:         "geth.pkgd:1.0.0",
	}
	assert.Equal(t, domain.NetworkAssignment{
		ContainerName: "pkgd-geth.pkgd",
		IP:            "172.33.1.9",
		Aliases:       []string{"geth.pkgd"},
	}, target.Assignment())
}
