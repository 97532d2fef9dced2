package main

// mongo module
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet AT gmail dot com>
//
// References : https://gist.github.com/boj/5412538
//              https://gist.github.com/border/3489566

import (
	"log"
	"strings"

	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
)

// MongoConnection defines connection to MongoDB
type MongoConnection struct {
	Session *mgo.Session
}

// Connect provides connection to MongoDB
func (m *MongoConnection) Connect() (*mgo.Session, error) {
	var err error
	if m.Session == nil {
		m.Session, err = mgo.Dial(Config.DBURI)
		if err != nil {
			return nil, err
		}
		m.Session.SetMode(mgo.Strong, true)
	}
	return m.Session.Clone(), nil
}

// global object which holds MongoDB connection
var _Mongo MongoConnection

// MongoStore keeps records in MongoDB collection, the whole collection is
// replaced on every save
type MongoStore[T any] struct {
	DBName string
	DBColl string
}

// NewMongoStore creates MongoStore for given database and storage key
func NewMongoStore[T any](dbname, key string) *MongoStore[T] {
	// collection names use underscores
	coll := strings.ReplaceAll(key, "-", "_")
	return &MongoStore[T]{DBName: dbname, DBColl: coll}
}

// Load implements Store interface
func (m *MongoStore[T]) Load() ([]T, error) {
	records, err := MongoGet[T](m.DBName, m.DBColl, bson.M{}, 0, -1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

// Save implements Store interface
func (m *MongoStore[T]) Save(records []T) error {
	return MongoReplace(m.DBName, m.DBColl, records)
}

// MongoReplace replaces content of given collection with provided records.
// Records are written into staging collection which is renamed over the
// target one, readers see either old or new set of records.
func MongoReplace[T any](dbname, collname string, records []T) error {
	if len(records) == 0 {
		err := MongoRemove(dbname, collname, bson.M{})
		if err == mgo.ErrNotFound {
			return nil
		}
		return err
	}
	stage := collname + "_stage"
	if err := MongoRemove(dbname, stage, bson.M{}); err != nil && err != mgo.ErrNotFound {
		return err
	}
	if err := MongoInsert(dbname, stage, records); err != nil {
		return err
	}
	s, err := _Mongo.Connect()
	if err != nil {
		log.Println("Unable to connect to MongoDB", err)
		return err
	}
	defer s.Close()
	cmd := bson.D{
		{Name: "renameCollection", Value: dbname + "." + stage},
		{Name: "to", Value: dbname + "." + collname},
		{Name: "dropTarget", Value: true},
	}
	var res bson.M
	if err := s.Run(cmd, &res); err != nil {
		log.Printf("Unable to rename %s to %s, error %v\n", stage, collname, err)
		return err
	}
	return nil
}

// MongoInsert records into MongoDB
func MongoInsert[T any](dbname, collname string, records []T) error {
	s, err := _Mongo.Connect()
	if err != nil {
		log.Println("Unable to connect to MongoDB", err)
		return err
	}
	defer s.Close()
	if len(records) == 0 {
		return nil
	}
	docs := make([]any, 0, len(records))
	for i := range records {
		docs = append(docs, &records[i])
	}
	c := s.DB(dbname).C(collname)
	if err := c.Insert(docs...); err != nil {
		log.Printf("Fail to insert %d records, error %v\n", len(docs), err)
		return err
	}
	return nil
}

// MongoGet records from MongoDB
func MongoGet[T any](dbname, collname string, spec bson.M, idx, limit int) ([]T, error) {
	out := []T{}
	s, err := _Mongo.Connect()
	if err != nil {
		log.Println("Unable to connect to MongoDB", err)
		return out, err
	}
	defer s.Close()
	c := s.DB(dbname).C(collname)
	// skip MongoDB internal _id field
	sel := bson.M{"_id": 0}
	if limit > 0 {
		err = c.Find(spec).Select(sel).Skip(idx).Limit(limit).All(&out)
	} else {
		err = c.Find(spec).Select(sel).Skip(idx).All(&out)
	}
	if err != nil {
		log.Printf("Unable to get records, error %v\n", err)
	}
	return out, err
}

// MongoRemove records from MongoDB
func MongoRemove(dbname, collname string, spec bson.M) error {
	s, err := _Mongo.Connect()
	if err != nil {
		log.Println("Unable to connect to MongoDB", err)
		return err
	}
	defer s.Close()
	c := s.DB(dbname).C(collname)
	_, err = c.RemoveAll(spec)
	if err != nil && err != mgo.ErrNotFound {
		log.Printf("Unable to remove records, spec %v, error %v\n", spec, err)
	}
	return err
}
