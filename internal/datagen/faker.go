//-------------------------------------------------------------------------
//
// salespipe - Sales Warehouse ELT Pipeline
//
// Copyright (c) 2025 - 2026, the salespipe authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package datagen generates demo CSV extracts shaped like the real OLTP
// exports, dirty edges included, so a pipeline run can be exercised
// without access to the source system.
package datagen

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Faker provides fake data generation using gofakeit.
type Faker struct {
	faker *gofakeit.Faker
}

// NewFaker creates a new Faker with a random seed.
func NewFaker() *Faker {
	return &Faker{
		faker: gofakeit.New(uint64(time.Now().UnixNano())),
	}
}

// NewFakerWithSeed creates a new Faker with a specific seed for reproducibility.
func NewFakerWithSeed(seed uint64) *Faker {
	return &Faker{
		faker: gofakeit.New(seed),
	}
}

// FirstName generates a random first name.
func (f *Faker) FirstName() string {
	return f.faker.FirstName()
}

// LastName generates a random last name.
func (f *Faker) LastName() string {
	return f.faker.LastName()
}

// Street generates a random street address.
func (f *Faker) Street() string {
	return f.faker.Street()
}

// City generates a random city name.
func (f *Faker) City() string {
	return f.faker.City()
}

// Country generates a random country name.
func (f *Faker) Country() string {
	return f.faker.Country()
}

// ProductName generates a random product name.
func (f *Faker) ProductName() string {
	return f.faker.ProductName()
}

// Price generates a random price between min and max.
func (f *Faker) Price(min, max float64) float64 {
	return f.faker.Price(min, max)
}

// DateRange generates a random date within a range.
func (f *Faker) DateRange(start, end time.Time) time.Time {
	return f.faker.DateRange(start, end)
}

// Int generates a random integer between min and max (inclusive).
func (f *Faker) Int(min, max int) int {
	return f.faker.IntRange(min, max)
}

// Float64 generates a random float64 between min and max.
func (f *Faker) Float64(min, max float64) float64 {
	return f.faker.Float64Range(min, max)
}

// Bool generates a random boolean.
func (f *Faker) Bool() bool {
	return f.faker.Bool()
}

// Word generates a random word.
func (f *Faker) Word() string {
	return f.faker.Word()
}

// Choose returns a random element from the given slice.
func Choose[T any](f *Faker, items []T) T {
	if len(items) == 0 {
		var zero T
		return zero
	}
	return items[f.Int(0, len(items)-1)]
}

// ChooseWeighted returns a random element based on weights.
func ChooseWeighted[T any](f *Faker, items []T, weights []int) T {
	if len(items) == 0 || len(weights) == 0 {
		var zero T
		return zero
	}

	totalWeight := 0
	for _, w := range weights {
		totalWeight += w
	}

	r := f.Int(1, totalWeight)
	cumulative := 0
	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return items[i]
		}
	}

	return items[len(items)-1]
}
