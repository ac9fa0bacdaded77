package shardb_test

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jpl-au/shardb"
)

func Example() {
	dir, _ := os.MkdirTemp("", "shardb-example")
	defer os.RemoveAll(dir)

	// Create a database holding five lines per shard file
	db, err := shardb.Create(filepath.Join(dir, "lines"), shardb.Config{FileCapacity: 5})
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	res, _ := db.Write("a", "b", "c", "d", "e", "f", "g")
	fmt.Println(res.TotalLines, res.TotalShards)

	// Skip and limit apply across shard boundaries
	out, _ := db.Query().Skip(6).Limit(5).Run()
	for _, it := range out.Items {
		fmt.Println(it.Address, it.Line)
	}
	// Output:
	// 7 2
	// 6 g
}

func ExampleDB_Insert() {
	dir, _ := os.MkdirTemp("", "shardb-example")
	defer os.RemoveAll(dir)

	db, _ := shardb.Create(filepath.Join(dir, "lines"), shardb.Config{FileCapacity: 2})
	defer db.Close()

	// Writes run in submission order, whatever order they are awaited in
	first := db.Insert("one")
	second := db.Insert("two", "three")

	r2, _ := second.Wait()
	r1, _ := first.Wait()
	fmt.Println(r1.TotalLines, r2.TotalLines)
	// Output: 1 3
}

func ExampleQuery_Shard() {
	dir, _ := os.MkdirTemp("", "shardb-example")
	defer os.RemoveAll(dir)

	db, _ := shardb.Create(filepath.Join(dir, "lines"), shardb.Config{FileCapacity: 10})
	defer db.Close()
	db.Write("x", "y", "z")

	// Shard 1 does not exist yet
	res, _ := db.Query().Shard(1).Run()
	fmt.Println(len(res.Items), res.TotalLines, res.TotalShards)
	// Output: 0 3 1
}

func ExampleQuery_Find() {
	dir, _ := os.MkdirTemp("", "shardb-example")
	defer os.RemoveAll(dir)

	db, _ := shardb.Create(filepath.Join(dir, "lines"), shardb.Config{FileCapacity: 2})
	defer db.Close()
	db.Write("GET /", "POST /login", "GET /about")

	get, _ := shardb.Match(`^GET `)
	res, _ := db.Query().Find(get).Run()
	for _, it := range res.Items {
		fmt.Println(it.Address, it.Line)
	}
	// Output:
	// 0 GET /
	// 2 GET /about
}
