package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/roadwatch/internal/domain/cooldown"
	"github.com/okian/roadwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRegistryUpsert(t *testing.T) {
	Convey("Given an empty registry", t, func() {
		r := New()
		conn := model.Conn{Transport: model.TransportWS, ID: "c1"}
		t0 := time.Unix(100, 0)
		p1 := model.Position{Latitude: 43.6563, Longitude: -79.3888}

		Convey("When a new actor reports", func() {
			a, err := r.Upsert("driver1", model.RoleA, p1, conn, t0)

			Convey("Then it is created without cooldown", func() {
				So(err, ShouldBeNil)
				So(a.InCooldown(), ShouldBeFalse)
				So(r.Len(), ShouldEqual, 1)
				got, ok := r.Get("driver1")
				So(ok, ShouldBeTrue)
				So(got, ShouldEqual, a)
			})
		})

		Convey("When an existing actor reports again", func() {
			a, _ := r.Upsert("driver1", model.RoleA, p1, conn, t0)
			pair := &cooldown.Pair{Key: "x"}
			a.Cooldown = pair

			p2 := model.Position{Latitude: 43.66, Longitude: -79.39}
			conn2 := model.Conn{Transport: model.TransportWS, ID: "c2"}
			b, err := r.Upsert("driver1", model.RoleA, p2, conn2, t0.Add(time.Second))

			Convey("Then position, connection and last-seen change but cooldown does not", func() {
				So(err, ShouldBeNil)
				So(b, ShouldEqual, a)
				So(b.Position, ShouldResemble, p2)
				So(b.Conn, ShouldResemble, conn2)
				So(b.LastSeen, ShouldEqual, t0.Add(time.Second))
				So(b.Cooldown, ShouldEqual, pair)
				So(r.Len(), ShouldEqual, 1)
			})

			Convey("And the old connection no longer owns it", func() {
				So(r.RemoveByConn(conn), ShouldBeEmpty)
				So(r.RemoveByConn(conn2), ShouldHaveLength, 1)
			})
		})

		Convey("When an existing actor reports a different role", func() {
			_, _ = r.Upsert("driver1", model.RoleA, p1, conn, t0)
			_, err := r.Upsert("driver1", model.RoleB, model.Position{}, conn, t0.Add(time.Second))

			Convey("Then it is rejected and nothing changes", func() {
				So(errors.Is(err, ErrRoleConflict), ShouldBeTrue)
				a, _ := r.Get("driver1")
				So(a.Role, ShouldEqual, model.RoleA)
				So(a.Position, ShouldResemble, p1)
				So(a.LastSeen, ShouldEqual, t0)
			})
		})
	})
}

func TestRegistryRemoval(t *testing.T) {
	Convey("Given actors on two connections", t, func() {
		r := New()
		c1 := model.Conn{Transport: model.TransportWS, ID: "c1"}
		c2 := model.Conn{Transport: model.TransportWS, ID: "c2"}
		at := time.Unix(0, 0)
		_, _ = r.Upsert("a", model.RoleA, model.Position{}, c1, at)
		_, _ = r.Upsert("b", model.RoleB, model.Position{}, c1, at)
		_, _ = r.Upsert("c", model.RoleB, model.Position{}, c2, at)

		Convey("RemoveByConn removes every actor on that connection", func() {
			removed := r.RemoveByConn(c1)
			So(removed, ShouldHaveLength, 2)
			So(removed[0].ID, ShouldEqual, "a")
			So(removed[1].ID, ShouldEqual, "b")
			So(r.Len(), ShouldEqual, 1)
		})

		Convey("RemoveByConn on an unknown connection is a no-op", func() {
			So(r.RemoveByConn(model.Conn{Transport: "ws", ID: "zz"}), ShouldBeEmpty)
			So(r.Len(), ShouldEqual, 3)
		})

		Convey("Remove deletes one actor", func() {
			a, ok := r.Remove("c")
			So(ok, ShouldBeTrue)
			So(a.ID, ShouldEqual, "c")
			_, ok = r.Remove("c")
			So(ok, ShouldBeFalse)
			So(r.RemoveByConn(c2), ShouldBeEmpty)
		})
	})
}

func TestRegistryIteration(t *testing.T) {
	Convey("Given three actors", t, func() {
		r := New()
		conn := model.Conn{Transport: model.TransportWS, ID: "c"}
		t0 := time.Unix(0, 0)
		_, _ = r.Upsert("a", model.RoleA, model.Position{}, conn, t0)
		_, _ = r.Upsert("b", model.RoleB, model.Position{}, conn, t0.Add(10*time.Second))
		_, _ = r.Upsert("c", model.RoleB, model.Position{}, conn, t0.Add(20*time.Second))

		Convey("AllExcept skips the given id and can be restarted", func() {
			seq := r.AllExcept("b")
			for range 2 {
				var ids []string
				for a := range seq {
					ids = append(ids, a.ID)
				}
				So(ids, ShouldHaveLength, 2)
				So(ids, ShouldNotContain, "b")
			}
		})

		Convey("AllExcept stops early when the consumer breaks", func() {
			n := 0
			for range r.AllExcept("") {
				n++
				break
			}
			So(n, ShouldEqual, 1)
		})

		Convey("Snapshot is sorted by id", func() {
			snap := r.Snapshot()
			So(snap, ShouldHaveLength, 3)
			So(snap[0].ID, ShouldEqual, "a")
			So(snap[2].ID, ShouldEqual, "c")
			So(snap[1].Transport, ShouldEqual, model.TransportWS)
		})

		Convey("Stale lists actors last seen before the cutoff", func() {
			So(r.Stale(t0.Add(15*time.Second)), ShouldResemble, []string{"a", "b"})
			So(r.Stale(t0), ShouldBeEmpty)
		})
	})
}
