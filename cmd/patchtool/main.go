// patchtool inspects and reorders triangle meshes stored in the plain text
// index and vertex formats used by the overdraw experiment.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Faultbox/patchsort/internal/cluster"
	"github.com/Faultbox/patchsort/internal/mesh"
	"github.com/Faultbox/patchsort/internal/patch"
	"github.com/Faultbox/patchsort/pkg/math"
)

var p = message.NewPrinter(language.English)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "info":
		err = cmdInfo(args)
	case "cluster":
		err = cmdCluster(args)
	case "order":
		err = cmdOrder(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`patchtool - mesh clustering and patch ordering utility

Usage:
  patchtool <command> [options]

Commands:
  info [-cache N] <face.txt> [frame.txt]         Show mesh statistics and cache miss ratios
  cluster [-cache N] [-alpha A] <face.txt> <out> Reorder for the vertex cache and write patches
  order [-cache N] [-alpha A] [-dir D] <face.txt> <frame.txt> <x> <y> <z> <out>
                                                 Depth-sort patches from a viewpoint

Examples:
  patchtool info face.txt frame1v.txt
  patchtool cluster -cache 20 -alpha 0.85 face.txt sorted.txt
  patchtool order face.txt frame1v.txt 0 0 300 mean.txt`)
}

func clusterFlags(name string) (*flag.FlagSet, *int, *float64) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	def := cluster.DefaultOptions()
	cache := fs.Int("cache", def.CacheSize, "Vertex cache size")
	alpha := fs.Float64("alpha", float64(def.Alpha), "Overdraw partition threshold")
	return fs, cache, alpha
}

func cmdInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	cache := fs.Int("cache", cluster.DefaultOptions().CacheSize, "Vertex cache size")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: patchtool info <face.txt> [frame.txt]")
	}
	ib, err := mesh.LoadIndices(fs.Arg(0), 0)
	if err != nil {
		return err
	}

	p.Printf("Mesh:     %s\n", fs.Arg(0))
	p.Printf("Faces:    %d\n", ib.NumFaces())
	p.Printf("Vertices: %d referenced\n", ib.MaxIndex())
	p.Printf("ACMR:     %.3f (FIFO cache of %d)\n", cluster.SimulateACMR(ib, *cache), *cache)

	if fs.NArg() > 1 {
		pos, err := mesh.LoadPositions(fs.Arg(1), 0)
		if err != nil {
			return err
		}
		if err := ib.Validate(len(pos)); err != nil {
			return err
		}
		lo, hi := bounds(pos)
		p.Printf("Frame:    %s, %d vertices\n", fs.Arg(1), len(pos))
		p.Printf("Bounds:   (%.2f, %.2f, %.2f) - (%.2f, %.2f, %.2f)\n", lo.X, lo.Y, lo.Z, hi.X, hi.Y, hi.Z)
	}
	return nil
}

func bounds(pts []math.Vec3) (lo, hi math.Vec3) {
	if len(pts) == 0 {
		return
	}
	lo, hi = pts[0], pts[0]
	for _, v := range pts[1:] {
		lo = math.Vec3{X: min(lo.X, v.X), Y: min(lo.Y, v.Y), Z: min(lo.Z, v.Z)}
		hi = math.Vec3{X: max(hi.X, v.X), Y: max(hi.Y, v.Y), Z: max(hi.Z, v.Z)}
	}
	return lo, hi
}

func cmdCluster(args []string) error {
	fs, cache, alpha := clusterFlags("cluster")
	fs.Parse(args)

	if fs.NArg() < 2 {
		return fmt.Errorf("usage: patchtool cluster [-cache N] [-alpha A] <face.txt> <out>")
	}
	ib, err := mesh.LoadIndices(fs.Arg(0), 0)
	if err != nil {
		return err
	}
	c, err := cluster.Build(ib, ib.MaxIndex(), cluster.Options{CacheSize: *cache, Alpha: float32(*alpha)}, nil)
	if err != nil {
		return err
	}

	out := fs.Arg(1)
	if err := mesh.SaveIndices(out, c.Indices); err != nil {
		return err
	}
	if err := savePartition(out+".patches", c.Partition); err != nil {
		return err
	}

	p.Printf("Faces:    %d\n", ib.NumFaces())
	p.Printf("ACMR:     %.3f -> %.3f\n", c.InputACMR, c.ACMR)
	p.Printf("Clusters: %d from the fan sort, %d patches\n", c.SortClusters, c.NumPatches())
	p.Printf("Wrote %s and %s.patches\n", out, out)
	return nil
}

func savePartition(path string, part cluster.Partition) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	for _, off := range part {
		if _, err := fmt.Fprintln(f, off); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

func cmdOrder(args []string) error {
	fs, cache, alpha := clusterFlags("order")
	dirName := fs.String("dir", patch.FrontToBack.String(), "front-to-back or back-to-front")
	fs.Parse(args)

	if fs.NArg() < 6 {
		return fmt.Errorf("usage: patchtool order [-cache N] [-alpha A] [-dir D] <face.txt> <frame.txt> <x> <y> <z> <out>")
	}
	dir, ok := patch.ParseDirection(*dirName)
	if !ok {
		return fmt.Errorf("unknown direction %q", *dirName)
	}
	var eye [3]float32
	for i := range eye {
		v, err := strconv.ParseFloat(fs.Arg(2+i), 32)
		if err != nil {
			return fmt.Errorf("viewpoint: %w", err)
		}
		eye[i] = float32(v)
	}

	ib, err := mesh.LoadIndices(fs.Arg(0), 0)
	if err != nil {
		return err
	}
	pos, err := mesh.LoadPositions(fs.Arg(1), 0)
	if err != nil {
		return err
	}
	c, err := cluster.Build(ib, len(pos), cluster.Options{CacheSize: *cache, Alpha: float32(*alpha)}, nil)
	if err != nil {
		return err
	}
	patches, err := patch.Compute(pos, c.Indices, c.Partition, nil)
	if err != nil {
		return err
	}

	sorted := patch.DepthSort(math.Vec3From(eye[:]), patch.Centroids(patches), c.Indices, c.Partition, dir)
	if err := mesh.SaveIndices(fs.Arg(5), sorted); err != nil {
		return err
	}
	p.Printf("Sorted %d patches (%d faces) %s from (%.1f, %.1f, %.1f) into %s\n",
		c.NumPatches(), ib.NumFaces(), dir, eye[0], eye[1], eye[2], fs.Arg(5))
	return nil
}
